// Package crawler implements the Crawler module (spec §4.5): a concrete
// worker.Runner that selects URLs from the lease protocol, fetches and
// filters their content, persists CrawledContent rows, extracts links, and
// optionally walks web archives for historical versions.
//
// Grounded on crawler/crawler.go (crawlPage's fetch loop) and
// crawler/crawlingrules.go (politeness/robots.txt), generalised to the
// lease-based selection and archive-walk semantics of spec §4.5 that no
// Go example in the pack covers (those instead follow
// original_source/crawlserv/src/ThreadCrawler.cpp).
package crawler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/crawlserv/crawlservpp-sub001/internal/fetcher"
	"github.com/crawlserv/crawlservpp-sub001/internal/store"
)

// Archive names one configured web archive to walk for historical versions
// of a URL (spec §4.5.5).
type Archive struct {
	Name          string
	TimemapPrefix string
	MementoPrefix string
}

// Counter expands one `${var}` placeholder in a custom URL into an
// arithmetic sequence (spec §4.5.1 "custom.counters"). Global counters
// cross-product over every custom URL; local counters apply to one URL.
type Counter struct {
	Var    string
	Start  int
	End    int
	Step   int
	Global bool
}

// valid reports whether the counter's step sign matches its interval
// direction (spec §4.5.1 "counters with sign mismatched to the interval are
// dropped with a warning").
func (c Counter) valid() bool {
	if c.Step == 0 {
		return false
	}
	if c.End >= c.Start {
		return c.Step > 0
	}
	return c.Step < 0
}

func (c Counter) sequence() []int {
	var out []int
	if c.Step > 0 {
		for v := c.Start; v <= c.End; v += c.Step {
			out = append(out, v)
		}
	} else {
		for v := c.Start; v >= c.End; v += c.Step {
			out = append(out, v)
		}
	}
	return out
}

// Config is the parsed form of a crawler Configuration body (spec §4.5,
// keys prefixed `crawler.`/`queries.`/`custom.`), compiled once per Worker
// start the same way fetcher.Config and queryengine.Query are.
type Config struct {
	SleepIdle  time.Duration
	SleepHTTP  time.Duration
	SleepError time.Duration

	Retries      int // -1 = retry indefinitely (spec §4.5.6, §8)
	RetryHTTP    map[int]bool
	RetryArchive bool

	LockTTL time.Duration

	ObeyRobots bool
	FixedDelay time.Duration

	XML          bool
	Recrawl      bool
	RecrawlStart bool
	Timing       bool

	StartPage      string
	CustomURLs     []string
	CustomCounters []Counter
	CustomRecrawl  bool

	LinkQueries            []uint64
	WhitelistTypeQueries   []uint64
	BlacklistTypeQueries   []uint64
	WhitelistURLQueries    []uint64
	BlacklistURLQueries    []uint64
	WhitelistContentQueries []uint64
	BlacklistContentQueries []uint64

	ParamsWhitelist []string
	ParamsBlacklist []string

	Archives []Archive

	Fetcher fetcher.Config
}

// DefaultConfig mirrors fetcher.DefaultConfig's role: sane values so a
// Configuration row that omits a key still produces a working Crawler.
func DefaultConfig() Config {
	return Config{
		SleepIdle:  5 * time.Second,
		SleepError: time.Second,
		Retries:    2,
		RetryHTTP:  map[int]bool{},
		LockTTL:    5 * time.Minute,
		Fetcher:    fetcher.DefaultConfig(),
	}
}

// LoadConfig parses a Configuration's items into a Config (spec §4.5
// "parsed once per worker start"). Unknown keys are ignored rather than
// fatal, matching fetcher.Config's "options the host does not support
// produce warnings but are not fatal" tolerance.
func LoadConfig(items []store.ConfigItem) (Config, []string, error) {
	cfg := DefaultConfig()
	var warnings []string

	get := func(category, name string) (string, bool) {
		for _, it := range items {
			if it.Category == category && it.Name == name {
				return it.Value, true
			}
		}
		return "", false
	}

	if v, ok := get("crawler", "sleep.idle"); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.SleepIdle = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := get("crawler", "sleep.http"); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.SleepHTTP = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := get("crawler", "sleep.error"); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.SleepError = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := get("crawler", "retries"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retries = n
		}
	}
	if v, ok := get("crawler", "retry.http"); ok {
		cfg.RetryHTTP = parseIntSet(v)
	}
	if v, ok := get("crawler", "retry.archive"); ok {
		cfg.RetryArchive = parseBool(v)
	}
	if v, ok := get("crawler", "lock"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LockTTL = time.Duration(n) * time.Minute
		}
	}
	if v, ok := get("crawler", "robots"); ok {
		cfg.ObeyRobots = parseBool(v)
	}
	if v, ok := get("crawler", "delay.fixed"); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.FixedDelay = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := get("crawler", "xml"); ok {
		cfg.XML = parseBool(v)
	}
	if v, ok := get("crawler", "recrawl"); ok {
		cfg.Recrawl = parseBool(v)
	}
	if v, ok := get("crawler", "recrawl.start"); ok {
		cfg.RecrawlStart = parseBool(v)
	}
	if v, ok := get("crawler", "timing"); ok {
		cfg.Timing = parseBool(v)
	}
	if v, ok := get("crawler", "start.page"); ok {
		cfg.StartPage = v
	}
	if v, ok := get("custom", "urls"); ok && v != "" {
		cfg.CustomURLs = splitNonEmpty(v, "\n")
	}
	if v, ok := get("custom", "recrawl"); ok {
		cfg.CustomRecrawl = parseBool(v)
	}
	if v, ok := get("custom", "counters"); ok && v != "" {
		counters, counterWarnings := parseCounters(v)
		cfg.CustomCounters = counters
		warnings = append(warnings, counterWarnings...)
	}
	if v, ok := get("queries", "links"); ok {
		cfg.LinkQueries = parseIDList(v)
	}
	if v, ok := get("queries", "whitelist.types"); ok {
		cfg.WhitelistTypeQueries = parseIDList(v)
	}
	if v, ok := get("queries", "blacklist.types"); ok {
		cfg.BlacklistTypeQueries = parseIDList(v)
	}
	if v, ok := get("queries", "whitelist.urls"); ok {
		cfg.WhitelistURLQueries = parseIDList(v)
	}
	if v, ok := get("queries", "blacklist.urls"); ok {
		cfg.BlacklistURLQueries = parseIDList(v)
	}
	if v, ok := get("queries", "whitelist.content"); ok {
		cfg.WhitelistContentQueries = parseIDList(v)
	}
	if v, ok := get("queries", "blacklist.content"); ok {
		cfg.BlacklistContentQueries = parseIDList(v)
	}
	if v, ok := get("crawler", "params.whitelist"); ok {
		cfg.ParamsWhitelist = splitNonEmpty(v, ",")
	}
	if v, ok := get("crawler", "params.blacklist"); ok {
		cfg.ParamsBlacklist = splitNonEmpty(v, ",")
	}
	if len(cfg.ParamsWhitelist) > 0 && len(cfg.ParamsBlacklist) > 0 {
		warnings = append(warnings, "crawler.params.whitelist and crawler.params.blacklist are mutually exclusive; whitelist takes precedence")
		cfg.ParamsBlacklist = nil
	}
	if v, ok := get("crawler", "archives"); ok {
		cfg.Archives = parseArchives(v)
	}

	return cfg, warnings, nil
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

func parseIntSet(v string) map[int]bool {
	set := map[int]bool{}
	for _, part := range splitNonEmpty(v, ",") {
		if n, err := strconv.Atoi(part); err == nil {
			set[n] = true
		}
	}
	return set
}

func parseIDList(v string) []uint64 {
	var ids []uint64
	for _, part := range splitNonEmpty(v, ",") {
		if n, err := strconv.ParseUint(part, 10, 64); err == nil {
			ids = append(ids, n)
		}
	}
	return ids
}

func splitNonEmpty(v, sep string) []string {
	var out []string
	for _, part := range strings.Split(v, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseCounters parses the `custom.counters` value: one entry per counter,
// semicolon-separated, each `var=start:end:step:scope` where scope is
// "global" or "local" (spec §4.5.1).
func parseCounters(v string) ([]Counter, []string) {
	var counters []Counter
	var warnings []string
	for _, entry := range splitNonEmpty(v, ";") {
		name, rest, ok := strings.Cut(entry, "=")
		if !ok {
			warnings = append(warnings, fmt.Sprintf("custom.counters: malformed entry %q, ignored", entry))
			continue
		}
		fields := strings.Split(rest, ":")
		if len(fields) < 3 {
			warnings = append(warnings, fmt.Sprintf("custom.counters: malformed entry %q, ignored", entry))
			continue
		}
		start, errA := strconv.Atoi(fields[0])
		end, errB := strconv.Atoi(fields[1])
		step, errC := strconv.Atoi(fields[2])
		if errA != nil || errB != nil || errC != nil {
			warnings = append(warnings, fmt.Sprintf("custom.counters: non-numeric entry %q, ignored", entry))
			continue
		}
		global := true
		if len(fields) >= 4 && strings.EqualFold(fields[3], "local") {
			global = false
		}
		c := Counter{Var: strings.TrimSpace(name), Start: start, End: end, Step: step, Global: global}
		if !c.valid() {
			warnings = append(warnings, fmt.Sprintf("custom.counters: counter %q has a step sign mismatched to its interval, dropped", name))
			continue
		}
		counters = append(counters, c)
	}
	return counters, warnings
}

// parseArchives parses the `crawler.archives` value: one entry per archive,
// semicolon-separated, each `name,timemap_prefix,memento_prefix`.
func parseArchives(v string) []Archive {
	var archives []Archive
	for _, entry := range splitNonEmpty(v, ";") {
		fields := strings.Split(entry, ",")
		if len(fields) != 3 {
			continue
		}
		archives = append(archives, Archive{
			Name:          strings.TrimSpace(fields[0]),
			TimemapPrefix: strings.TrimSpace(fields[1]),
			MementoPrefix: strings.TrimSpace(fields[2]),
		})
	}
	return archives
}

// expandCustomURLs substitutes every Counter into its `${var}` placeholder
// across every custom URL, global counters cross-producting over all URLs
// and local counters applying within one URL, then deduplicates the result
// (spec §4.5.1).
func expandCustomURLs(urls []string, counters []Counter) []string {
	if len(counters) == 0 {
		return dedupeStrings(urls)
	}

	var global, local []Counter
	for _, c := range counters {
		if c.Global {
			global = append(global, c)
		} else {
			local = append(local, c)
		}
	}

	expanded := make([]string, 0, len(urls))
	for _, u := range urls {
		expanded = append(expanded, expandOne(u, local)...)
	}
	for _, c := range global {
		var next []string
		for _, u := range expanded {
			next = append(next, expandOne(u, []Counter{c})...)
		}
		expanded = next
	}
	return dedupeStrings(expanded)
}

func expandOne(u string, counters []Counter) []string {
	results := []string{u}
	for _, c := range counters {
		placeholder := "${" + c.Var + "}"
		if !strings.Contains(u, placeholder) {
			continue
		}
		var next []string
		for _, base := range results {
			for _, v := range c.sequence() {
				next = append(next, strings.ReplaceAll(base, placeholder, strconv.Itoa(v)))
			}
		}
		results = next
	}
	return results
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
