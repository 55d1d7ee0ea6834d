package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crawlserv.conf")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadAndGet(t *testing.T) {
	path := writeTempFile(t, "# comment\ndb_host=db.example.com\n\ndb_port=3307\n")
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if v := f.Get("db_host", "default"); v != "db.example.com" {
		t.Errorf("Get failed: expected db.example.com got %s", v)
	}
	if v := f.Get("db_user", "default"); v != "default" {
		t.Errorf("Get failed: expected default got %s", v)
	}
	if v := f.GetInt("db_port", 3306); v != 3307 {
		t.Errorf("GetInt failed: expected 3307 got %d", v)
	}
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := writeTempFile(t, "not-a-key-value-line\n")
	if _, err := Load(path); err == nil {
		t.Errorf("Load should have failed on a malformed line")
	}
}

func TestGetBoolDefaultsFalseWhenUnset(t *testing.T) {
	path := writeTempFile(t, "db_host=localhost\n")
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f.GetBool("server_logs_deletable", true) {
		t.Errorf("GetBool should default to false for a missing key regardless of defaultVal")
	}
}

func TestServerParsesAllowList(t *testing.T) {
	path := writeTempFile(t, "server_port=9090\nserver_allow=10.0.0.1, 10.0.0.2,*\nserver_logs_deletable=true\n")
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	s := f.Server()
	if s.ServerPort != 9090 {
		t.Errorf("ServerPort: expected 9090 got %d", s.ServerPort)
	}
	if len(s.ServerAllow) != 3 || s.ServerAllow[2] != "*" {
		t.Errorf("ServerAllow: unexpected %v", s.ServerAllow)
	}
	if !s.ServerLogsDeletable {
		t.Errorf("ServerLogsDeletable: expected true")
	}
	if s.ServerDataDeletable {
		t.Errorf("ServerDataDeletable: expected false (default)")
	}
}

func TestParseItemsRoundTrip(t *testing.T) {
	body := []byte(`[{"cat":"crawler","name":"sleep.idle","value":"1000"}]`)
	items, err := ParseItems(body)
	if err != nil {
		t.Fatalf("ParseItems failed: %v", err)
	}
	if len(items) != 1 || items[0].Category != "crawler" || items[0].Name != "sleep.idle" || items[0].Value != "1000" {
		t.Errorf("ParseItems: unexpected result %+v", items)
	}
	encoded, err := EncodeItems(items)
	if err != nil {
		t.Fatalf("EncodeItems failed: %v", err)
	}
	roundTripped, err := ParseItems(encoded)
	if err != nil {
		t.Fatalf("ParseItems of round-tripped body failed: %v", err)
	}
	if roundTripped[0] != items[0] {
		t.Errorf("round trip mismatch: got %+v want %+v", roundTripped[0], items[0])
	}
}
