// Package urix contains URL normalisation, escaping and resolution helpers
// shared by the crawler's link extraction and archive walk, plus a parser
// for the Memento link-format used by web archives.
package urix

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
)

// MaxURLBytes is the hard limit on a stored URL's length (spec §3).
const MaxURLBytes = 2000

// reservedAllowlist are the reserved characters that must survive escaping
// unescaped, per spec §4.5.4 step 1.
const reservedAllowlist = ";/?:@=&#%"

// StripFragment removes a URL fragment ("#...") from a raw link string.
func StripFragment(raw string) string {
	if idx := strings.IndexByte(raw, '#'); idx >= 0 {
		return raw[:idx]
	}
	return raw
}

// Escape URL-escapes a raw link while preserving the reserved character
// allowlist and folding "&amp;" back into "&", matching spec §4.5.4 step 1.
func Escape(raw string) string {
	raw = strings.ReplaceAll(raw, "&amp;", "&")
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for _, r := range raw {
		if strings.ContainsRune(reservedAllowlist, r) {
			b.WriteRune(r)
			continue
		}
		if isUnreserved(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteString(url.QueryEscape(string(r)))
	}
	return b.String()
}

func isUnreserved(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '-' || r == '.' || r == '_' || r == '~'
}

// Unescape reverses Escape for the subset of characters it touches; kept
// primarily so callers (and tests) can assert round-trip behaviour per
// spec §8.
func Unescape(s string) (string, error) {
	return url.QueryUnescape(s)
}

// Resolve resolves a raw link found on base against base using RFC 3986
// semantics and rejects it if the resulting host differs from domain
// (after lowercasing), per spec §4.5.4 step 2. An empty host on the link
// (relative link) is always allowed.
func Resolve(base *url.URL, domain string, raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	resolved := base.ResolveReference(u)
	if resolved.Hostname() != "" && !strings.EqualFold(resolved.Hostname(), domain) {
		return nil, false
	}
	return resolved, true
}

// StripArchivePrefix removes a web archive's URL prefix, and anything
// between it and the first occurrence of "http" after it, from an archived
// link, so the result starts with that "http"; this is required before
// resolving archive-phase links (spec §4.5.4 step 2 exception). A link not
// starting with prefix is returned unchanged.
func StripArchivePrefix(prefix string, raw string) string {
	if idx := strings.Index(raw, prefix); idx == 0 {
		rest := raw[len(prefix):]
		if at := strings.Index(rest, "http"); at >= 0 {
			return rest[at:]
		}
		return rest
	}
	return raw
}

// FilterParams applies a query-parameter allow/deny-list to a URL, per
// spec §4.5.4 step 3. whitelist and blacklist are mutually exclusive;
// whitelist takes precedence if both are non-empty.
func FilterParams(u *url.URL, whitelist, blacklist []string) {
	if len(whitelist) == 0 && len(blacklist) == 0 {
		return
	}
	values := u.Query()
	if len(whitelist) > 0 {
		allow := toSet(whitelist)
		for key := range values {
			if !allow[key] {
				values.Del(key)
			}
		}
	} else {
		deny := toSet(blacklist)
		for key := range values {
			if deny[key] {
				values.Del(key)
			}
		}
	}
	u.RawQuery = values.Encode()
}

func toSet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

// TooLong reports whether a URL string exceeds MaxURLBytes (spec §3, §8).
func TooLong(s string) bool {
	return len(s) > MaxURLBytes
}

// MementoEntry is one {url, datetime} pair extracted from a Memento
// link-format document.
type MementoEntry struct {
	URL      string
	Datetime time.Time
}

// mementoLinkRe matches one comma-separated link-format element:
// `<url>; rel="..."; datetime="..."`. Greedy enough for the simple grammar
// Memento timemaps use; not a general RFC 8288 Link-header parser.
var mementoLinkRe = regexp.MustCompile(`<([^>]*)>((?:\s*;\s*[a-zA-Z]+\s*=\s*"[^"]*")*)`)
var mementoAttrRe = regexp.MustCompile(`([a-zA-Z]+)\s*=\s*"([^"]*)"`)

const mementoTimeLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// ParseMementoLinkFormat parses a Memento link-format document into the
// sequence of mementos it describes, plus the "rel=timemap" link used to
// follow pagination, if present (spec §4.5.5, glossary "Memento
// link-format").
func ParseMementoLinkFormat(body string) (mementos []MementoEntry, nextTimemap string) {
	for _, m := range mementoLinkRe.FindAllStringSubmatch(body, -1) {
		link := m[1]
		attrs := map[string]string{}
		for _, a := range mementoAttrRe.FindAllStringSubmatch(m[2], -1) {
			attrs[strings.ToLower(a[1])] = a[2]
		}
		rel := attrs["rel"]
		if strings.Contains(rel, "timemap") {
			nextTimemap = link
			continue
		}
		if !strings.Contains(rel, "memento") {
			continue
		}
		entry := MementoEntry{URL: link}
		if dt, ok := attrs["datetime"]; ok {
			if parsed, err := time.Parse(mementoTimeLayout, dt); err == nil {
				entry.Datetime = parsed
			}
		}
		mementos = append(mementos, entry)
	}
	return mementos, nextTimemap
}

// foundCapturePrefix is the body prefix a reference-redirect memento
// response begins with (spec §4.5.5).
const foundCapturePrefix = "found capture at "

// digitsRe extracts the 14-digit timestamp from a reference-redirect body.
var digitsRe = regexp.MustCompile(`\d{14}`)

// ParseReferenceRedirect reports whether body is a Memento reference
// redirect and, if so, extracts the new 14-digit timestamp.
func ParseReferenceRedirect(body string) (timestamp string, ok bool) {
	if !strings.HasPrefix(body, foundCapturePrefix) {
		return "", false
	}
	match := digitsRe.FindString(body)
	if match == "" {
		return "", false
	}
	return match, true
}

// MementoTimestampToSQL converts a 14-digit Memento timestamp
// (YYYYMMDDhhmmss) into a SQL-style "YYYY-MM-DD hh:mm:ss" timestamp, per
// the round-trip property of spec §8 ("convert-long-date"); the inverse is
// SQLTimestampToMemento.
func MementoTimestampToSQL(ts string) (string, error) {
	if len(ts) != 14 {
		return "", fmt.Errorf("urix: invalid memento timestamp %q", ts)
	}
	t, err := time.Parse("20060102150405", ts)
	if err != nil {
		return "", fmt.Errorf("urix: invalid memento timestamp %q: %w", ts, err)
	}
	return t.Format("2006-01-02 15:04:05"), nil
}

// SQLTimestampToMemento is the inverse of MementoTimestampToSQL.
func SQLTimestampToMemento(sql string) (string, error) {
	t, err := time.Parse("2006-01-02 15:04:05", sql)
	if err != nil {
		return "", fmt.Errorf("urix: invalid sql timestamp %q: %w", sql, err)
	}
	return t.Format("20060102150405"), nil
}

// DuplicateNamespace strips a trailing integer from ns, increments it, and
// probes exists until a free namespace is found, per spec §4.1
// "duplicate_namespace". O(k) probes where k = existing duplicates.
func DuplicateNamespace(ns string, exists func(string) bool) string {
	base, n := splitTrailingInt(ns)
	for {
		n++
		candidate := fmt.Sprintf("%s%d", base, n)
		if !exists(candidate) {
			return candidate
		}
	}
}

var trailingIntRe = regexp.MustCompile(`^(.*?)(\d+)$`)

func splitTrailingInt(ns string) (base string, n int) {
	m := trailingIntRe.FindStringSubmatch(ns)
	if m == nil {
		return ns, 0
	}
	fmt.Sscanf(m[2], "%d", &n)
	return m[1], n
}

// SortedKeys returns the keys of a string set in sorted order; used where
// deterministic iteration over query-param allow/deny-lists matters for
// tests.
func SortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
