// Package analyzer implements the Analyzer module's Markov-chain text
// generator, supplemented from original_source's
// Module/Analyzer/Algo/MarkovText.cpp/.hpp. MarkovTweet, the sibling
// algorithm in original_source, is not ported: it depends on a vendored
// C++ "rawr" library with no equivalent anywhere in the example pack (see
// DESIGN.md).
//
// Unlike crawler/parser/extractor, the Analyzer does not cycle one URL at a
// time through the select/lock/check/release lease protocol. MarkovText's
// onAlgoInit reads every crawled-content row in one batch (getCorpus) to
// build its dictionary, so OnInit here does the same one-shot read via
// store.Handle.GetCorpus before the per-tick generation loop begins.
package analyzer

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/kljensen/snowball"

	"github.com/crawlserv/crawlservpp-sub001/internal/store"
	"github.com/crawlserv/crawlservpp-sub001/internal/worker"
)

// dictionaryCheckInterval mirrors MarkovText.cpp's periodic isRunning()
// check during dictionary construction (every ~1,000,000 characters there;
// every this many tokens here).
const dictionaryCheckInterval = 1_000_000

// Markov is a concrete worker.Runner generating random-walk text over an
// n-gram dictionary built from a URL list's crawled content.
type Markov struct {
	handle  *store.Handle
	w       *worker.Worker
	options store.ThreadOptions

	cfg Config
	dim int

	dictionary map[string][]string
	keys       []string
	sources    int

	generated int
	rng       *rand.Rand
}

// New builds a Markov analyzer bound to handle/options/w, matching
// supervisor.RunnerFactory's signature modulo the concrete return type.
func New(handle *store.Handle, options store.ThreadOptions, w *worker.Worker) (*Markov, error) {
	return &Markov{handle: handle, options: options, w: w}, nil
}

// OnInit loads configuration, reads the URL list's corpus in one batch, and
// builds the n-gram dictionary the tick loop will generate from
// (MarkovText.cpp's onAlgoInit).
func (m *Markov) OnInit(resumed bool) (bool, error) {
	configuration, err := m.handle.GetConfig(m.options.Config)
	if err != nil {
		return false, fmt.Errorf("analyzer: loading configuration: %w", err)
	}
	cfg, err := LoadConfig(configuration.Items)
	if err != nil {
		return false, err
	}
	m.cfg = cfg
	m.dim = cfg.Dimension
	if m.dim < 1 {
		m.dim = 1
	}

	corpus, sources, err := m.handle.GetCorpus(m.options.UrlList)
	if err != nil {
		return false, fmt.Errorf("analyzer: reading corpus: %w", err)
	}
	m.sources = sources

	if !m.buildDictionary(corpus) {
		m.w.Log("analyzer: interrupted while building dictionary")
		return false, nil
	}
	if len(m.dictionary) == 0 {
		m.w.Log(fmt.Sprintf("analyzer: corpus from %d source(s) produced no n-grams, nothing to generate", sources))
		return false, nil
	}

	m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	m.w.SetStatusMessage(fmt.Sprintf("generating markov text from %d source(s)", sources))
	return true, nil
}

// buildDictionary tokenises the corpus, optionally snowball-stemming each
// token, and maps every dim-word sliding window to the words observed
// following it — createDictionary in MarkovText.cpp. Returns false if the
// Worker was stopped mid-build.
func (m *Markov) buildDictionary(corpus string) bool {
	words := strings.Fields(corpus)
	tokens := make([]string, 0, len(words))

	for i, word := range words {
		if m.cfg.Stem {
			if stemmed, err := snowball.Stem(word, "english", false); err == nil {
				word = stemmed
			}
		}
		tokens = append(tokens, word)

		if i > 0 && i%dictionaryCheckInterval == 0 && !m.w.IsRunning() {
			return false
		}
	}

	dict := make(map[string][]string)
	for i := 0; i+m.dim < len(tokens); i++ {
		key := strings.Join(tokens[i:i+m.dim], " ")
		dict[key] = append(dict[key], tokens[i+m.dim])
	}

	m.dictionary = dict
	m.keys = make([]string, 0, len(dict))
	for key := range dict {
		m.keys = append(m.keys, key)
	}
	return true
}

// OnTick generates one text and logs it — no physical result table is
// materialised, following the precedent set by internal/parser and
// internal/extractor (spec §3 only materialises a URL, crawled-content, and
// link table per UrlList) — then stops cleanly once a configured max has
// been reached (MarkovText.cpp's onAlgoTick calling finished()).
func (m *Markov) OnTick() (bool, error) {
	if m.cfg.Max > 0 && m.generated >= m.cfg.Max {
		return false, nil
	}

	text := m.generateText()
	m.w.Log(fmt.Sprintf("generated text (%d word(s) from %d source(s)): %s", m.cfg.Length, m.sources, text))
	m.generated++

	if m.cfg.Max > 0 {
		m.w.SetProgress(float32(m.generated) / float32(m.cfg.Max))
	}
	if m.cfg.Sleep > 0 {
		time.Sleep(m.cfg.Sleep)
	}
	return true, nil
}

// generateText performs one random walk over the dictionary: start from a
// random key, repeatedly append a random word observed after the current
// window, re-seeding from a fresh random key whenever the walk runs off the
// dictionary (MarkovText.cpp's createText).
func (m *Markov) generateText() string {
	if len(m.keys) == 0 {
		return ""
	}
	words := strings.Split(m.keys[m.rng.Intn(len(m.keys))], " ")

	for len(words) < m.cfg.Length {
		window := strings.Join(words[len(words)-m.dim:], " ")
		next, ok := m.dictionary[window]
		if !ok || len(next) == 0 {
			words = append(words, strings.Split(m.keys[m.rng.Intn(len(m.keys))], " ")...)
			continue
		}
		words = append(words, next[m.rng.Intn(len(next))])
	}
	if len(words) > m.cfg.Length {
		words = words[:m.cfg.Length]
	}
	return strings.Join(words, " ")
}

// OnPause/OnUnpause: MarkovText.cpp's onAlgoPause/onAlgoUnpause are both
// empty overrides; the dictionary is held in memory and needs no action
// across a pause.
func (m *Markov) OnPause()   {}
func (m *Markov) OnUnpause() {}

// OnClear releases any lease the Analyzer might hold (defensive backstop
// consistent with every other module, though this module's OnInit never
// actually takes one) and logs how much text was generated.
func (m *Markov) OnClear(interrupted bool) {
	if err := m.handle.ReleaseAllLocks(m.options.UrlList, store.ModuleAnalyzer); err != nil {
		m.w.Log(fmt.Sprintf("releasing locks on shutdown: %v", err))
	}
	m.w.Log(fmt.Sprintf("generated %d text(s) from %d source(s)", m.generated, m.sources))
}
