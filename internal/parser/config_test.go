package parser

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

func TestLoadConfigParsesQueryLists(t *testing.T) {
	items := []store.ConfigItem{
		{Category: "parser", Name: "id.from.url", Value: "true"},
		{Category: "parser", Name: "queries.id", Value: "1, 2,3"},
		{Category: "parser", Name: "queries.datetime", Value: "4"},
		{Category: "parser", Name: "queries.fields", Value: "5,6"},
	}
	cfg, err := LoadConfig(items)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.IDFromURL {
		t.Error("IDFromURL = false, want true")
	}
	if want := []uint64{1, 2, 3}; !reflect.DeepEqual(cfg.IDQueries, want) {
		t.Errorf("IDQueries = %v, want %v", cfg.IDQueries, want)
	}
	if want := []uint64{4}; !reflect.DeepEqual(cfg.DateTimeQueries, want) {
		t.Errorf("DateTimeQueries = %v, want %v", cfg.DateTimeQueries, want)
	}
	if want := []uint64{5, 6}; !reflect.DeepEqual(cfg.FieldQueries, want) {
		t.Errorf("FieldQueries = %v, want %v", cfg.FieldQueries, want)
	}
}

func TestLoadConfigIgnoresMalformedIDs(t *testing.T) {
	items := []store.ConfigItem{
		{Category: "parser", Name: "queries.id", Value: "1,not-a-number,3"},
	}
	cfg, err := LoadConfig(items)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if want := []uint64{1, 3}; !reflect.DeepEqual(cfg.IDQueries, want) {
		t.Errorf("IDQueries = %v, want %v", cfg.IDQueries, want)
	}
}
