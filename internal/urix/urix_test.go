package urix

import (
	"net/url"
	"testing"
)

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{"foo/bar", "a=1&b=2", "path;p=1?q=2"}
	for _, c := range cases {
		escaped := Escape(c)
		unescaped, err := Unescape(escaped)
		if err != nil {
			t.Fatalf("Unescape(%q) failed: %v", escaped, err)
		}
		if unescaped != c {
			t.Errorf("round-trip failed: %q -> %q -> %q", c, escaped, unescaped)
		}
	}
}

func TestStripFragment(t *testing.T) {
	if got := StripFragment("/foo/bar#section"); got != "/foo/bar" {
		t.Errorf("StripFragment failed: got %q", got)
	}
	if got := StripFragment("/foo/bar"); got != "/foo/bar" {
		t.Errorf("StripFragment failed: got %q", got)
	}
}

func TestResolveRejectsOffDomain(t *testing.T) {
	base, _ := url.Parse("https://example.com/a/b")
	if _, ok := Resolve(base, "example.com", "/c/d"); !ok {
		t.Errorf("Resolve rejected same-domain relative link")
	}
	if _, ok := Resolve(base, "example.com", "https://other.com/x"); ok {
		t.Errorf("Resolve accepted off-domain link")
	}
}

func TestTooLong(t *testing.T) {
	exact := make([]byte, MaxURLBytes)
	over := make([]byte, MaxURLBytes+1)
	if TooLong(string(exact)) {
		t.Errorf("exactly %d bytes should be accepted", MaxURLBytes)
	}
	if !TooLong(string(over)) {
		t.Errorf("%d bytes should be rejected", MaxURLBytes+1)
	}
}

func TestParseMementoLinkFormat(t *testing.T) {
	body := `<http://archive.example/web/20210107120000/http://site.example/>; rel="memento"; datetime="Thu, 07 Jan 2021 12:00:00 GMT", <http://archive.example/web/timemap/link/http://site.example/>; rel="timemap"`
	entries, timemap := ParseMementoLinkFormat(body)
	if len(entries) != 1 {
		t.Fatalf("expected 1 memento, got %d", len(entries))
	}
	if entries[0].Datetime.IsZero() {
		t.Errorf("expected parsed datetime")
	}
	if timemap == "" {
		t.Errorf("expected timemap link to be captured")
	}
}

func TestParseReferenceRedirect(t *testing.T) {
	ts, ok := ParseReferenceRedirect("found capture at 20210107120000")
	if !ok || ts != "20210107120000" {
		t.Errorf("expected ts=20210107120000 ok=true, got ts=%q ok=%v", ts, ok)
	}
	if _, ok := ParseReferenceRedirect("<html>not a redirect</html>"); ok {
		t.Errorf("expected ok=false for non-redirect body")
	}
}

func TestMementoTimestampRoundTrip(t *testing.T) {
	sql, err := MementoTimestampToSQL("20210107120000")
	if err != nil {
		t.Fatalf("MementoTimestampToSQL failed: %v", err)
	}
	if sql != "2021-01-07 12:00:00" {
		t.Errorf("expected 2021-01-07 12:00:00 got %s", sql)
	}
	back, err := SQLTimestampToMemento(sql)
	if err != nil {
		t.Fatalf("SQLTimestampToMemento failed: %v", err)
	}
	if back != "20210107120000" {
		t.Errorf("round-trip failed: got %s", back)
	}
}

func TestDuplicateNamespace(t *testing.T) {
	taken := map[string]bool{"site1": true, "site2": true}
	exists := func(ns string) bool { return taken[ns] }
	got := DuplicateNamespace("site1", exists)
	if got != "site3" {
		t.Errorf("expected site3 got %s", got)
	}
}

func TestFilterParamsWhitelist(t *testing.T) {
	u, _ := url.Parse("https://example.com/a?keep=1&drop=2")
	FilterParams(u, []string{"keep"}, nil)
	if u.Query().Get("keep") != "1" || u.Query().Has("drop") {
		t.Errorf("whitelist filter failed: %s", u.RawQuery)
	}
}

func TestFilterParamsBlacklist(t *testing.T) {
	u, _ := url.Parse("https://example.com/a?keep=1&drop=2")
	FilterParams(u, nil, []string{"drop"})
	if u.Query().Get("keep") != "1" || u.Query().Has("drop") {
		t.Errorf("blacklist filter failed: %s", u.RawQuery)
	}
}
