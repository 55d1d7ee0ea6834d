// Package extractor implements the Extractor module (spec §1: "issues
// secondary HTTP requests derived from parsed data"). Its body is out of
// scope beyond the shared supervisor contract, so it is kept thin: select
// the next URL awaiting extraction, derive a target URL from the content
// already crawled for it via the configured source query, issue one
// request for that target through its own Fetcher, log the outcome, and
// mark the URL finished.
//
// Grounded on the Crawler's own fetch step (internal/crawler/fetchfilter.go)
// reused here for the extractor's secondary request, and on ThreadParser.cpp
// for the select/lock/query/finish shape every non-crawler module shares.
package extractor

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/crawlserv/crawlservpp-sub001/internal/fetcher"
	"github.com/crawlserv/crawlservpp-sub001/internal/queryengine"
	"github.com/crawlserv/crawlservpp-sub001/internal/store"
	"github.com/crawlserv/crawlservpp-sub001/internal/worker"
)

// Config is the parsed form of an extractor Configuration body.
type Config struct {
	LockTTL time.Duration

	SourceQuery uint64 // query producing the secondary request's target URL
	Fetcher     fetcher.Config
}

// DefaultConfig mirrors crawler.DefaultConfig's role.
func DefaultConfig() Config {
	return Config{LockTTL: 5 * time.Minute, Fetcher: fetcher.DefaultConfig()}
}

// LoadConfig parses a Configuration's items the same dotted category/name
// way crawler.LoadConfig does.
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
	if v, ok := get("extractor", "lock"); ok {
		if minutes, err := strconv.Atoi(v); err == nil {
			cfg.LockTTL = time.Duration(minutes) * time.Minute
		}
	}
	if v, ok := get("extractor", "query.source"); ok {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.SourceQuery = id
		}
	}
	return cfg, nil
}

// Extractor is a concrete worker.Runner issuing secondary HTTP requests
// derived from each URL's latest crawled content (spec §1).
type Extractor struct {
	handle  *store.Handle
	w       *worker.Worker
	options store.ThreadOptions

	cfg   Config
	fetch *fetcher.Fetcher

	sourceQuery *queryengine.Query

	processed    int
	totalAtStart int
}

// New builds an Extractor bound to handle/options/w, matching
// supervisor.RunnerFactory's signature modulo the concrete return type.
func New(handle *store.Handle, options store.ThreadOptions, w *worker.Worker) (*Extractor, error) {
	return &Extractor{handle: handle, options: options, w: w}, nil
}

func (e *Extractor) OnInit(resumed bool) (bool, error) {
	configuration, err := e.handle.GetConfig(e.options.Config)
	if err != nil {
		return false, fmt.Errorf("extractor: loading configuration: %w", err)
	}
	cfg, err := LoadConfig(configuration.Items)
	if err != nil {
		return false, err
	}
	e.cfg = cfg
	e.fetch = fetcher.New(cfg.Fetcher, log.Default())

	if cfg.SourceQuery != 0 {
		def, err := e.handle.GetQuery(cfg.SourceQuery)
		if err != nil {
			return false, fmt.Errorf("extractor: loading source query %d: %w", cfg.SourceQuery, err)
		}
		q, err := queryengine.Compile(def)
		if err != nil {
			return false, fmt.Errorf("extractor: compiling source query %q: %w", def.Name, err)
		}
		e.sourceQuery = q
	}

	if total, countErr := e.handle.CountURLs(e.options.UrlList); countErr == nil {
		e.totalAtStart = total
	}
	return true, nil
}

// OnTick selects the next URL awaiting extraction, derives its secondary
// target from the configured source query run against the crawled content,
// issues one request for it, logs the outcome, and marks the URL finished.
func (e *Extractor) OnTick() (bool, error) {
	u, found, err := e.handle.NextURL(e.options.UrlList, store.ModuleExtractor, e.w.Last())
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}

	lockable, err := e.handle.IsLockable(e.options.UrlList, u.ID, store.ModuleExtractor)
	if err != nil {
		return false, err
	}
	if !lockable {
		if u.ID > e.w.Last() {
			e.w.SetLast(u.ID)
		}
		return true, nil
	}

	lockTime, err := e.handle.Lock(e.options.UrlList, u.ID, store.ModuleExtractor, e.cfg.LockTTL)
	if err != nil {
		return false, err
	}

	if target, ok := e.deriveTarget(u.ID); ok {
		result, fetchErr := e.fetch.Fetch(context.Background(), target)
		if fetchErr != nil {
			e.w.Log(fmt.Sprintf("extraction request failed for %s: %v", target, fetchErr))
		} else {
			e.w.Log(fmt.Sprintf("extracted %s: HTTP %d, %d bytes", target, result.StatusCode, len(result.Body)))
		}
	}

	held, err := e.handle.CheckLock(e.options.UrlList, u.ID, store.ModuleExtractor, lockTime)
	if err != nil {
		return false, err
	}
	if !held {
		return true, nil
	}
	if err := e.handle.MarkFinished(e.options.UrlList, u.ID, store.ModuleExtractor, lockTime); err != nil {
		return false, err
	}
	if err := e.handle.Release(e.options.UrlList, u.ID, store.ModuleExtractor, lockTime); err != nil {
		return false, err
	}

	e.processed++
	if u.ID > e.w.Last() {
		e.w.SetLast(u.ID)
	}
	total := e.totalAtStart
	if e.processed > total {
		total = e.processed
	}
	if total > 0 {
		e.w.SetProgress(float32(e.processed) / float32(total))
	}
	return true, nil
}

// deriveTarget runs the source query against urlID's latest crawled content
// to produce the secondary request's target URL.
func (e *Extractor) deriveTarget(urlID uint64) (string, bool) {
	if e.sourceQuery == nil {
		return "", false
	}
	content, found, err := e.handle.GetLatestContent(e.options.UrlList, urlID)
	if err != nil || !found {
		return "", false
	}
	var subject any = string(content.Content)
	if e.sourceQuery.Def.Kind == store.QueryKindXPath {
		doc, err := queryengine.ParseDocument(string(content.Content))
		if err != nil {
			return "", false
		}
		subject = doc
	}
	target, ok, err := e.sourceQuery.GetFirst(subject)
	if err != nil || !ok {
		return "", false
	}
	return target, true
}

func (e *Extractor) OnPause()   {}
func (e *Extractor) OnUnpause() {}

func (e *Extractor) OnClear(interrupted bool) {
	if err := e.handle.ReleaseAllLocks(e.options.UrlList, store.ModuleExtractor); err != nil {
		e.w.Log(fmt.Sprintf("releasing locks on shutdown: %v", err))
	}
}
