package fetcher

import "time"

// HTTPVersion selects the protocol version a Fetcher's transport prefers
// (spec §4.2).
type HTTPVersion string

const (
	HTTPVersionAny     HTTPVersion = "any"
	HTTPVersion1_0     HTTPVersion = "1.0"
	HTTPVersion1_1     HTTPVersion = "1.1"
	HTTPVersion2       HTTPVersion = "2"
	HTTPVersion2PK     HTTPVersion = "2-PK"   // prior-knowledge h2c, unsupported by stdlib TLS stack
	HTTPVersion2TLS    HTTPVersion = "2-TLS"
)

// Config groups the ~60 network options of spec §4.2. Not every field is
// applied: Fetcher.SetConfig warns about a few unsupported ones (see New)
// and ignores the rest without a warning; none of them is fatal.
type Config struct {
	// Connections
	MaxConnections    int
	IgnoreContentLength bool

	// Cookies
	CookiesFile    string
	CookieSession  bool
	CookiesSet     map[string]string

	// DNS
	DNSCacheTimeout time.Duration
	DNSDoH          string // DNS-over-HTTPS resolver URL
	DNSInterface    string
	DNSStaticResolves map[string]string // host -> ip; not applied by SetConfig
	DNSServers      []string
	DNSShuffle      bool

	// Encodings
	AcceptEncodings []string

	// Headers
	CustomHeaders map[string]string

	// Protocol
	HTTPVersion HTTPVersion

	// Local binding
	LocalInterface string
	LocalPort      int
	LocalPortRange int

	// Proxy
	ProxyHost        string
	ProxyAuth        string
	ProxyHeaders     map[string]string
	PreProxy         string
	ProxyTLSSRP      bool
	ProxyTunnelling  bool // canonical key is "proxyy.tunnelling" (spec §9 open question); ProxyTunnellingKey also recognises "proxy.tunnelling", but no configuration loader reads either key

	// Redirects
	FollowRedirects   bool
	MaxRedirects      int
	RedirectPostAsGet bool // per-method POST-redirect policy
	Referer           string
	AutoReferer       bool

	// Speed limits
	UpSpeedLimit   int64
	DownSpeedLimit int64
	LowSpeedLimit  int64
	LowSpeedTime   time.Duration

	// TLS
	TLSVerifyHost       bool
	TLSVerifyPeer       bool
	TLSVerifyStatus     bool
	ProxyTLSVerifyHost  bool
	ProxyTLSVerifyPeer  bool

	// TCP
	TCPFastOpen  bool
	TCPKeepAlive bool
	TCPNoDelay   bool // "nagle" disabled when true

	// Timeouts
	ConnectTimeout      time.Duration
	HappyEyeballsTimeout time.Duration
	RequestTimeout      time.Duration

	// TLS-SRP
	TLSSRPUser string
	TLSSRPPass string

	UserAgent string
	Verbose   bool
}

// DefaultConfig follows crawler/crawler.go's defaultFetchTimeout/
// defaultUserAgent constants; no mandated numeric defaults exist beyond
// "~60 options" for the underlying fetch knobs.
func DefaultConfig() Config {
	return Config{
		MaxConnections:    8,
		AcceptEncodings:   []string{"gzip", "deflate"},
		HTTPVersion:       HTTPVersionAny,
		FollowRedirects:   true,
		MaxRedirects:      10,
		TLSVerifyHost:     true,
		TLSVerifyPeer:     true,
		TCPKeepAlive:      true,
		ConnectTimeout:    10 * time.Second,
		RequestTimeout:    10 * time.Second,
		UserAgent:         "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
	}
}

// ProxyTunnellingKey resolves the canonical "proxyy.tunnelling" key,
// accepting "proxy.tunnelling" as an alias (spec §9 Open Question).
func ProxyTunnellingKey(key string) bool {
	return key == "proxyy.tunnelling" || key == "proxy.tunnelling"
}
