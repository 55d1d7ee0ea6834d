package analyzer

import (
	"strconv"
	"time"

	"github.com/crawlserv/crawlservpp-sub001/internal/store"
)

// Config is the parsed form of an analyzer Configuration body for the
// Markov-chain text generator, supplemented from original_source's
// Module/Analyzer/Algo/MarkovText.cpp.
type Config struct {
	Dimension int // n-gram window size
	Length    int // words per generated text
	Max       int // stop after this many texts, 0 = unlimited
	Sleep     time.Duration
	Stem      bool // snowball-stem tokens before indexing the dictionary
}

// DefaultConfig mirrors MarkovText.cpp's defaults (dimension 3, length 400,
// unlimited repetitions, no sleep between generations).
func DefaultConfig() Config {
	return Config{Dimension: 3, Length: 400, Max: 0, Sleep: 0, Stem: false}
}

// LoadConfig parses a Configuration's items the same dotted category/name
// way crawler.LoadConfig does, under the "markov-text" category.
func LoadConfig(items []store.ConfigItem) (Config, error) {
	cfg := DefaultConfig()
	get := func(category, name string) (string, bool) {
		for _, it := range items {
			if it.Category == category && it.Name == name {
				return it.Value, true
			}
		}
		return "", false
	}
	if v, ok := get("markov-text", "dimension"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Dimension = n
		}
	}
	if v, ok := get("markov-text", "length"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Length = n
		}
	}
	if v, ok := get("markov-text", "max"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Max = n
		}
	}
	if v, ok := get("markov-text", "sleep"); ok {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			cfg.Sleep = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := get("markov-text", "stem"); ok {
		cfg.Stem = v == "true"
	}
	return cfg, nil
}
