package store

import "time"

// Website is a top-level tenant: {id, name, namespace, domain} (spec §3).
type Website struct {
	ID        uint64
	Name      string
	Namespace string
	Domain    string // stored without scheme/trailing slash
}

// UrlList is a per-website collection of URLs with its own physical
// storage tables (spec §3, glossary "URL list").
type UrlList struct {
	ID        uint64
	WebsiteID uint64
	Name      string
	Namespace string
}

// Url is one row of a URL list's physical URL table (spec §3).
type Url struct {
	ID      uint64
	UrlList uint64
	URL     string
	Hash    uint64
	Manual  bool

	Crawled   bool
	Parsed    bool
	Extracted bool
	Analyzed  bool

	CrawlLock   *time.Time
	ParseLock   *time.Time
	ExtractLock *time.Time
	AnalyzeLock *time.Time
}

// Module identifies one of the four pipeline modules that can hold a lease
// on a Url row.
type Module string

const (
	ModuleCrawler   Module = "crawler"
	ModuleParser    Module = "parser"
	ModuleExtractor Module = "extractor"
	ModuleAnalyzer  Module = "analyzer"
)

// CrawledContent is one fetched version of a Url (spec §3); multiple rows
// per URL are permitted, archived rows carry a memento timestamp in
// CrawlTime.
type CrawledContent struct {
	ID           uint64
	UrlID        uint64
	CrawlTime    time.Time
	Archived     bool
	ResponseCode int
	ContentType  string
	Content      []byte
}

// Link represents an observed link between two URLs of the same URL list
// (spec §3); uniqueness is keyed by (From, To, Archived).
type Link struct {
	ID       uint64
	From     uint64
	To       uint64
	Archived bool
}

// QueryKind distinguishes the two flavours of Query (spec §3, §4.3).
type QueryKind string

const (
	QueryKindRegex QueryKind = "regex"
	QueryKindXPath QueryKind = "xpath"
)

// Query is an immutable-per-reference query definition (spec §3).
type Query struct {
	ID           uint64
	WebsiteID    uint64 // 0 => global
	Name         string
	Text         string
	Kind         QueryKind
	ResultBool   bool
	ResultSingle bool
	ResultMulti  bool
	TextOnly     bool
}

// ConfigItem is one {cat, name, value} triple of a Configuration body
// (spec §3).
type ConfigItem struct {
	Category string
	Name     string
	Value    string
}

// Configuration is a named, versioned set of ConfigItems for one module of
// one website (spec §3).
type Configuration struct {
	ID        uint64
	WebsiteID uint64
	Module    Module
	Name      string
	Items     []ConfigItem
}

// ThreadOptions identifies the website/url-list/config a Thread is bound
// to (spec §3).
type ThreadOptions struct {
	Website uint64
	UrlList uint64
	Config  uint64
}

// Thread is the Store's single source of truth for worker lifecycle
// (spec §3).
type Thread struct {
	ID            uint64
	Module        Module
	StatusMessage string
	Paused        bool
	Progress      float32
	LastID        uint64
	RunTimeS      uint64
	PauseTimeS    uint64
	Options       ThreadOptions
}

// LogEntry is one append-only row of the `log` table (spec §3).
type LogEntry struct {
	ID        uint64
	Module    Module
	Entry     string
	Timestamp time.Time
}
