package analyzer

import (
	"reflect"
	"testing"
	"time"

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

func TestLoadConfigParsesAllKeys(t *testing.T) {
	items := []store.ConfigItem{
		{Category: "markov-text", Name: "dimension", Value: "2"},
		{Category: "markov-text", Name: "length", Value: "100"},
		{Category: "markov-text", Name: "max", Value: "5"},
		{Category: "markov-text", Name: "sleep", Value: "250"},
		{Category: "markov-text", Name: "stem", Value: "true"},
	}
	cfg, err := LoadConfig(items)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Dimension != 2 {
		t.Errorf("Dimension = %d, want 2", cfg.Dimension)
	}
	if cfg.Length != 100 {
		t.Errorf("Length = %d, want 100", cfg.Length)
	}
	if cfg.Max != 5 {
		t.Errorf("Max = %d, want 5", cfg.Max)
	}
	if cfg.Sleep != 250*time.Millisecond {
		t.Errorf("Sleep = %v, want 250ms", cfg.Sleep)
	}
	if !cfg.Stem {
		t.Error("Stem = false, want true")
	}
}

func TestLoadConfigIgnoresNonPositiveDimensionAndLength(t *testing.T) {
	items := []store.ConfigItem{
		{Category: "markov-text", Name: "dimension", Value: "0"},
		{Category: "markov-text", Name: "length", Value: "-10"},
	}
	cfg, err := LoadConfig(items)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	def := DefaultConfig()
	if cfg.Dimension != def.Dimension {
		t.Errorf("Dimension = %d, want default %d when given a non-positive value", cfg.Dimension, def.Dimension)
	}
	if cfg.Length != def.Length {
		t.Errorf("Length = %d, want default %d when given a non-positive value", cfg.Length, def.Length)
	}
}
