// Package fetcher downloads remote resources over HTTP, generalising the
// teacher's single-purpose stdHttpFetcher into a reconfigurable client that
// applies the network knobs described in spec §4.2, retries transient
// failures with exponential backoff, and repairs non-UTF-8 bodies before
// handing them back to callers.
package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/rehttp"
)

// Result is the outcome of one Fetch call.
type Result struct {
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Fetcher is a reconfigurable HTTP client, one per Worker connection (spec
// §4.2: "a Fetcher belongs to exactly one Worker").
type Fetcher struct {
	cfg    Config
	client *http.Client
	logger *log.Logger
}

// New builds a Fetcher from cfg. SetConfig logs a warning when cfg requests
// local interface/port binding, custom DNS resolution (interface, DoH or
// servers), TCP fast-open or HTTP/2 prior knowledge, none of which it can
// apply; other Config fields that the transport does not use are ignored
// without a warning. No unsupported option is fatal.
func New(cfg Config, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	f := &Fetcher{logger: logger}
	f.SetConfig(cfg)
	return f
}

// SetConfig rebuilds the underlying transport and client for cfg. Safe to
// call on a live Fetcher between fetches (spec §4.2 "config can change
// between calls without discarding cookies" — cookie jar, once added, is
// preserved by reusing f.client.Jar when non-nil).
func (f *Fetcher) SetConfig(cfg Config) {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: -1,
	}
	if cfg.TCPKeepAlive {
		dialer.KeepAlive = 30 * time.Second
	}
	if cfg.LocalInterface != "" || cfg.LocalPort != 0 {
		f.logger.Printf("fetcher: local_interface/local_port requested (%q/%d) but net.Dialer cannot bind by interface name portably; ignored", cfg.LocalInterface, cfg.LocalPort)
	}
	if cfg.DNSInterface != "" || cfg.DNSDoH != "" || len(cfg.DNSServers) > 0 {
		f.logger.Printf("fetcher: custom DNS resolution (interface/DoH/servers) requested but not wired to net.Dialer; relying on system resolver")
	}
	if cfg.TCPFastOpen {
		f.logger.Printf("fetcher: tcp_fastopen requested; Go's net package has no portable knob for it, ignored")
	}

	transport := &http.Transport{
		Proxy:                 proxyFunc(cfg),
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxConnections,
		MaxIdleConnsPerHost:   cfg.MaxConnections,
		DisableCompression:    len(cfg.AcceptEncodings) == 1 && cfg.AcceptEncodings[0] == "identity",
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.TLSVerifyPeer || !cfg.TLSVerifyHost,
		},
	}
	switch cfg.HTTPVersion {
	case HTTPVersion1_0, HTTPVersion1_1:
		transport.ForceAttemptHTTP2 = false
	case HTTPVersion2, HTTPVersion2TLS:
		transport.ForceAttemptHTTP2 = true
	case HTTPVersion2PK:
		f.logger.Printf("fetcher: http_version 2-PK (prior-knowledge h2c) has no net/http equivalent; falling back to negotiated HTTP/2")
		transport.ForceAttemptHTTP2 = true
	}

	retryTransport := rehttp.NewTransport(
		transport,
		rehttp.RetryAll(rehttp.RetryMaxRetries(3), rehttp.RetryTemporaryErr()),
		rehttp.ExpJitterDelay(500*time.Millisecond, 20*time.Second),
	)

	client := &http.Client{
		Transport: retryTransport,
		Timeout:   cfg.RequestTimeout,
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	} else if cfg.MaxRedirects > 0 {
		max := cfg.MaxRedirects
		client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
			if len(via) >= max {
				return fmt.Errorf("fetcher: stopped after %d redirects", max)
			}
			return nil
		}
	}
	if f.client != nil {
		client.Jar = f.client.Jar
	}
	f.client = client
	f.cfg = cfg
}

// proxyFunc wires cfg.ProxyHost (and optional cfg.ProxyAuth) into the
// transport's per-request proxy selection (spec §4.2 proxy.*).
func proxyFunc(cfg Config) func(*http.Request) (*url.URL, error) {
	if cfg.ProxyHost == "" {
		return nil
	}
	proxyURL, err := url.Parse(cfg.ProxyHost)
	if err != nil {
		return nil
	}
	if cfg.ProxyAuth != "" {
		if user, pass, ok := strings.Cut(cfg.ProxyAuth, ":"); ok {
			proxyURL.User = url.UserPassword(user, pass)
		}
	}
	return http.ProxyURL(proxyURL)
}

// Reset rebuilds the Fetcher after a cooldown, used by callers that detect
// repeated connection failures (spec §4.2 "reset(backoff)").
func (f *Fetcher) Reset(backoff time.Duration) {
	if backoff > 0 {
		time.Sleep(backoff)
	}
	f.SetConfig(f.cfg)
}

// Fetch performs exactly one request/response cycle against absoluteURL
// (spec §4.2: "fetch performs one request"). Transient network failures are
// retried at the transport level by rehttp (configured in SetConfig); a
// retryable HTTP status code is returned to the caller as-is — deciding
// whether to retry it, counting attempts, backing off
// crawler.sleep.error, and reconfirming the URL's lease between attempts is
// the Crawler's job (policy.go's scheduleRetry), not the Fetcher's. The
// response body is decoded to UTF-8 per its Content-Type charset, or else
// repaired to valid UTF-8 (the content is not sniffed), matching the
// teacher's single GET+timing shape in
// crawler/fetcher/fetcher.go's Fetch.
func (f *Fetcher) Fetch(ctx context.Context, absoluteURL string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, absoluteURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("fetcher: building request for %s: %w", absoluteURL, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	if len(f.cfg.AcceptEncodings) > 0 {
		req.Header.Set("Accept-Encoding", strings.Join(f.cfg.AcceptEncodings, ", "))
	}
	if f.cfg.Referer != "" {
		req.Header.Set("Referer", f.cfg.Referer)
	}
	for k, v := range f.cfg.CustomHeaders {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Result{}, fmt.Errorf("fetcher: fetching %s: %w", absoluteURL, err)
	}

	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return Result{}, fmt.Errorf("fetcher: reading body of %s: %w", absoluteURL, readErr)
	}

	contentType := resp.Header.Get("Content-Type")
	utf8Body, decodeErr := toUTF8(body, contentType)
	if decodeErr != nil {
		f.logger.Printf("fetcher: charset repair for %s: %v", absoluteURL, decodeErr)
		utf8Body = body
	}

	return Result{
		StatusCode:  resp.StatusCode,
		ContentType: normalizeContentType(contentType),
		Body:        utf8Body,
		Duration:    elapsed,
	}, nil
}

// normalizeContentType strips parameters, lower-casing the MIME type so
// callers can compare it against constants like "text/html" directly.
func normalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}
