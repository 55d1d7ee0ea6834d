package queryengine

import (
	"testing"

	"github.com/crawlserv/crawlservpp-sub001/internal/store"
)

func TestRegexGetBoolAndFirst(t *testing.T) {
	def := store.Query{Name: "find-year", Kind: store.QueryKindRegex, Text: `\d{4}`, ResultBool: true, ResultSingle: true}
	q, err := Compile(def)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ok, err := q.GetBool("published in 2024")
	if err != nil {
		t.Fatalf("GetBool: %v", err)
	}
	if !ok {
		t.Errorf("GetBool = false, want true")
	}
	first, found, err := q.GetFirst("published in 2024 then 2025")
	if err != nil {
		t.Fatalf("GetFirst: %v", err)
	}
	if !found || first != "2024" {
		t.Errorf("GetFirst = (%q, %v), want (2024, true)", first, found)
	}
}

func TestRegexGetAllRequiresResultMulti(t *testing.T) {
	def := store.Query{Name: "find-year", Kind: store.QueryKindRegex, Text: `\d{4}`, ResultMulti: true}
	q, err := Compile(def)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	all, err := q.GetAll("2024 and 2025 and 2026")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	want := []string{"2024", "2025", "2026"}
	if len(all) != len(want) {
		t.Fatalf("GetAll = %v, want %v", all, want)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Errorf("GetAll[%d] = %q, want %q", i, all[i], want[i])
		}
	}
}

func TestXPathGetAllTextOnly(t *testing.T) {
	doc, err := ParseDocument(`<html><body><p>one</p><p>two</p></body></html>`)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	def := store.Query{Name: "paragraphs", Kind: store.QueryKindXPath, Text: "//p", TextOnly: true, ResultMulti: true}
	q, err := Compile(def)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	all, err := q.GetAll(doc)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 2 || all[0] != "one" || all[1] != "two" {
		t.Fatalf("GetAll = %v, want [one two]", all)
	}
}

func TestXPathGetBoolFalseWhenAbsent(t *testing.T) {
	doc, err := ParseDocument(`<html><body><p>one</p></body></html>`)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	def := store.Query{Name: "headers", Kind: store.QueryKindXPath, Text: "//h1"}
	q, err := Compile(def)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ok, err := q.GetBool(doc)
	if err != nil {
		t.Fatalf("GetBool: %v", err)
	}
	if ok {
		t.Errorf("GetBool = true, want false")
	}
}
