package store

import (
	"testing"
	"time"
)

func TestIsLockableAt(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if !IsLockableAt(nil, now) {
		t.Errorf("nil lock should be lockable")
	}
	if !IsLockableAt(&past, now) {
		t.Errorf("expired lock should be lockable")
	}
	if IsLockableAt(&future, now) {
		t.Errorf("future lock should not be lockable")
	}
}

func TestLockColumnsAreDistinct(t *testing.T) {
	modules := []Module{ModuleCrawler, ModuleParser, ModuleExtractor, ModuleAnalyzer}
	seen := map[string]bool{}
	for _, m := range modules {
		col := lockColumn(m)
		if col == "" {
			t.Errorf("module %s has no lock column", m)
		}
		if seen[col] {
			t.Errorf("duplicate lock column %s", col)
		}
		seen[col] = true

		fin := finishedColumn(m)
		if fin == "" {
			t.Errorf("module %s has no finished column", m)
		}
	}
}
