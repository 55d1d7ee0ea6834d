package extractor

import (
	"reflect"
	"testing"

	"github.com/crawlserv/crawlservpp-sub001/internal/store"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig(nil): %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("LoadConfig(nil) = %+v, want defaults %+v", cfg, DefaultConfig())
	}
}

func TestLoadConfigParsesLockAndSourceQuery(t *testing.T) {
	items := []store.ConfigItem{
		{Category: "extractor", Name: "lock", Value: "15"},
		{Category: "extractor", Name: "query.source", Value: "7"},
	}
	cfg, err := LoadConfig(items)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LockTTL.Minutes() != 15 {
		t.Errorf("LockTTL = %v, want 15m", cfg.LockTTL)
	}
	if cfg.SourceQuery != 7 {
		t.Errorf("SourceQuery = %d, want 7", cfg.SourceQuery)
	}
}

func TestLoadConfigIgnoresMalformedLock(t *testing.T) {
	items := []store.ConfigItem{
		{Category: "extractor", Name: "lock", Value: "not-a-number"},
	}
	cfg, err := LoadConfig(items)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LockTTL != DefaultConfig().LockTTL {
		t.Errorf("LockTTL = %v, want default %v when unparsable", cfg.LockTTL, DefaultConfig().LockTTL)
	}
}
