package analyzer

import (
	"math/rand"
	"strings"
	"testing"
)

func TestBuildDictionaryMapsSlidingWindows(t *testing.T) {
	m := &Markov{cfg: Config{Dimension: 2}, dim: 2}
	if ok := m.buildDictionary("the quick brown fox the quick red fox"); !ok {
		t.Fatal("buildDictionary returned false, want true")
	}
	next, ok := m.dictionary["the quick"]
	if !ok {
		t.Fatalf("dictionary missing key %q", "the quick")
	}
	if len(next) != 2 {
		t.Fatalf("dictionary[%q] = %v, want 2 entries (brown, red)", "the quick", next)
	}
}

func TestBuildDictionaryEmptyCorpusProducesNoNgrams(t *testing.T) {
	m := &Markov{cfg: Config{Dimension: 3}, dim: 3}
	if ok := m.buildDictionary(""); !ok {
		t.Fatal("buildDictionary returned false, want true")
	}
	if len(m.dictionary) != 0 {
		t.Errorf("dictionary = %v, want empty", m.dictionary)
	}
}

func TestBuildDictionaryStemsWhenConfigured(t *testing.T) {
	m := &Markov{cfg: Config{Dimension: 1, Stem: true}, dim: 1}
	if ok := m.buildDictionary("running runner runs"); !ok {
		t.Fatal("buildDictionary returned false, want true")
	}
	if _, ok := m.dictionary["run"]; !ok {
		t.Errorf("dictionary = %v, want a stemmed key %q", m.dictionary, "run")
	}
}

func TestGenerateTextRespectsConfiguredLength(t *testing.T) {
	m := &Markov{cfg: Config{Dimension: 2, Length: 12}, dim: 2, rng: rand.New(rand.NewSource(1))}
	if ok := m.buildDictionary("alpha beta gamma delta alpha beta epsilon zeta alpha beta gamma"); !ok {
		t.Fatal("buildDictionary returned false, want true")
	}
	text := m.generateText()
	words := strings.Fields(text)
	if len(words) != 12 {
		t.Errorf("generateText produced %d words, want 12: %q", len(words), text)
	}
}

func TestGenerateTextEmptyDictionaryReturnsEmptyString(t *testing.T) {
	m := &Markov{cfg: Config{Dimension: 1, Length: 10}, dim: 1, rng: rand.New(rand.NewSource(1))}
	if got := m.generateText(); got != "" {
		t.Errorf("generateText() = %q, want empty string for an empty dictionary", got)
	}
}

func TestGenerateTextReseedsWhenWalkRunsOffDictionary(t *testing.T) {
	// "c" is never a dictionary key (it only ever appears as a successor),
	// so any walk landing on it must re-seed from a fresh random key to
	// keep going, which this exercises on the way to the configured length.
	m := &Markov{cfg: Config{Dimension: 1, Length: 20}, dim: 1, rng: rand.New(rand.NewSource(1))}
	if ok := m.buildDictionary("a b a c"); !ok {
		t.Fatal("buildDictionary returned false, want true")
	}
	text := m.generateText()
	if got := len(strings.Fields(text)); got != 20 {
		t.Errorf("generateText produced %d words, want 20: %q", got, text)
	}
}
