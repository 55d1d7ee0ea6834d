package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 2 * time.Second
	cfg.RequestTimeout = 2 * time.Second
	return cfg
}

func TestFetchReturnsBodyAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := New(testConfig(), nil)
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", res.StatusCode)
	}
	if res.ContentType != "text/html" {
		t.Errorf("ContentType = %q, want text/html", res.ContentType)
	}
	if string(res.Body) != "<html>ok</html>" {
		t.Errorf("Body = %q", res.Body)
	}
}

func TestFetchMakesExactlyOneAttemptOnRetryableStatus(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(testConfig(), nil)
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", res.StatusCode)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 — retry accounting belongs to the caller, not Fetch", attempts)
	}
}

func TestFetchDoesNotRetryUnlistedStatus(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(testConfig(), nil)
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", res.StatusCode)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestToUTF8PassesThroughDeclaredUTF8(t *testing.T) {
	body := []byte("héllo")
	out, err := toUTF8(body, "text/plain; charset=utf-8")
	if err != nil {
		t.Fatalf("toUTF8: %v", err)
	}
	if string(out) != "héllo" {
		t.Errorf("out = %q", out)
	}
}

func TestToUTF8DecodesISO88591(t *testing.T) {
	// 0xE9 is "é" in ISO-8859-1.
	body := []byte{'h', 0xE9, 'l', 'l', 'o'}
	out, err := toUTF8(body, "text/plain; charset=iso-8859-1")
	if err != nil {
		t.Fatalf("toUTF8: %v", err)
	}
	if string(out) != "héllo" {
		t.Errorf("out = %q, want héllo", out)
	}
}

func TestRepairUTF8ReplacesInvalidBytes(t *testing.T) {
	body := []byte{'o', 'k', 0xFF, 'o', 'k'}
	out := repairUTF8(body)
	if !containsReplacementRune(out) {
		t.Errorf("repairUTF8 did not insert a replacement rune: %q", out)
	}
}

func containsReplacementRune(b []byte) bool {
	for _, r := range string(b) {
		if r == '�' {
			return true
		}
	}
	return false
}
