package crawler

import (
	"reflect"
	"testing"

	"github.com/crawlserv/crawlservpp-sub001/internal/store"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, warnings, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig(nil): %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("LoadConfig(nil) = %+v, want defaults %+v", cfg, DefaultConfig())
	}
}

func TestLoadConfigParsesBasicKeys(t *testing.T) {
	items := []store.ConfigItem{
		{Category: "crawler", Name: "sleep.idle", Value: "1000"},
		{Category: "crawler", Name: "retries", Value: "-1"},
		{Category: "crawler", Name: "retry.http", Value: "500,502,503"},
		{Category: "crawler", Name: "robots", Value: "true"},
		{Category: "crawler", Name: "start.page", Value: "https://example.com/"},
		{Category: "queries", Name: "links", Value: "1,2"},
	}
	cfg, _, err := LoadConfig(items)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SleepIdle.Milliseconds() != 1000 {
		t.Errorf("SleepIdle = %v, want 1000ms", cfg.SleepIdle)
	}
	if cfg.Retries != -1 {
		t.Errorf("Retries = %d, want -1", cfg.Retries)
	}
	if !cfg.RetryHTTP[500] || !cfg.RetryHTTP[502] || !cfg.RetryHTTP[503] {
		t.Errorf("RetryHTTP = %v, want 500/502/503 set", cfg.RetryHTTP)
	}
	if !cfg.ObeyRobots {
		t.Error("ObeyRobots = false, want true")
	}
	if cfg.StartPage != "https://example.com/" {
		t.Errorf("StartPage = %q", cfg.StartPage)
	}
	if want := []uint64{1, 2}; !reflect.DeepEqual(cfg.LinkQueries, want) {
		t.Errorf("LinkQueries = %v, want %v", cfg.LinkQueries, want)
	}
}

func TestLoadConfigParamsWhitelistWinsOverBlacklist(t *testing.T) {
	items := []store.ConfigItem{
		{Category: "crawler", Name: "params.whitelist", Value: "a,b"},
		{Category: "crawler", Name: "params.blacklist", Value: "c,d"},
	}
	cfg, warnings, err := LoadConfig(items)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ParamsBlacklist != nil {
		t.Errorf("ParamsBlacklist = %v, want nil once whitelist is set", cfg.ParamsBlacklist)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning about the mutually exclusive params lists")
	}
}

func TestLoadConfigCountersDropMismatchedStep(t *testing.T) {
	items := []store.ConfigItem{
		{Category: "custom", Name: "counters", Value: "page=1:10:-1:global"},
	}
	cfg, warnings, err := LoadConfig(items)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.CustomCounters) != 0 {
		t.Errorf("CustomCounters = %v, want none (mismatched step dropped)", cfg.CustomCounters)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning about the mismatched counter step")
	}
}

func TestCounterSequenceAscendingAndDescending(t *testing.T) {
	asc := Counter{Var: "p", Start: 1, End: 5, Step: 2}
	if got, want := asc.sequence(), []int{1, 3, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("ascending sequence = %v, want %v", got, want)
	}
	desc := Counter{Var: "p", Start: 5, End: 1, Step: -2}
	if got, want := desc.sequence(), []int{5, 3, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("descending sequence = %v, want %v", got, want)
	}
}

func TestExpandCustomURLsCrossProductsGlobalCounters(t *testing.T) {
	urls := []string{"https://example.com/${page}"}
	counters := []Counter{{Var: "page", Start: 1, End: 2, Step: 1, Global: true}}
	got := expandCustomURLs(urls, counters)
	want := []string{"https://example.com/1", "https://example.com/2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expandCustomURLs = %v, want %v", got, want)
	}
}

func TestParseArchivesRequiresThreeFields(t *testing.T) {
	items := []store.ConfigItem{
		{Category: "crawler", Name: "archives", Value: "wayback,https://web.archive.org/web/timemap/link/,https://web.archive.org/web/;malformed,onlytwo"},
	}
	cfg, _, err := LoadConfig(items)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Archives) != 1 {
		t.Fatalf("Archives = %v, want exactly one well-formed entry", cfg.Archives)
	}
	if cfg.Archives[0].Name != "wayback" {
		t.Errorf("Archives[0].Name = %q, want wayback", cfg.Archives[0].Name)
	}
}
