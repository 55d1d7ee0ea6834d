package store

import "testing"

func TestValidNamespace(t *testing.T) {
	cases := map[string]bool{
		"abcd":     true,
		"a_b$c9":   true,
		"abc":      false, // too short
		"ab cd":    false, // space not allowed
		"ab-cd":    false, // dash not allowed
		"":         false,
	}
	for ns, want := range cases {
		if got := ValidNamespace(ns); got != want {
			t.Errorf("ValidNamespace(%q) = %v, want %v", ns, got, want)
		}
	}
}

func TestTableNames(t *testing.T) {
	if got := UrlListTableName("news", "front"); got != "news_front" {
		t.Errorf("UrlListTableName: got %s", got)
	}
	if got := CrawledTableName("news", "front"); got != "news_front_crawled" {
		t.Errorf("CrawledTableName: got %s", got)
	}
	if got := LinksTableName("news", "front"); got != "news_front_links" {
		t.Errorf("LinksTableName: got %s", got)
	}
	if got := DerivedTableName("news", "front", "parsed", "titles"); got != "news_front_parsed_titles" {
		t.Errorf("DerivedTableName: got %s", got)
	}
}

func TestChildTableNamesOrder(t *testing.T) {
	derived := []DerivedTable{{Module: "parsed", TableNamespace: "titles"}}
	names := ChildTableNames("news", "front", derived)
	want := []string{
		"news_front_links",
		"news_front_crawled",
		"news_front_parsed_titles",
		"news_front",
	}
	if len(names) != len(want) {
		t.Fatalf("expected %d names got %d: %v", len(want), len(names), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("position %d: got %s want %s", i, names[i], want[i])
		}
	}
}
