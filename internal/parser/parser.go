// Package parser implements the Parser module (spec §1: "transforms stored
// content into structured fields"). Its body is explicitly out of scope
// beyond the shared supervisor contract (spec §1 "parser/extractor/analyzer
// module bodies beyond their shared supervisor contract"), so it is kept
// thin: select the next unparsed URL via the same lease protocol the
// Crawler uses, run the configured id/datetime/field queries against the
// latest crawled content, log the result, and mark the URL finished.
//
// Grounded on ThreadParser.cpp's shape (select → query → persist → finish)
// and on internal/crawler's use of the same worker.Runner contract.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/crawlserv/crawlservpp-sub001/internal/queryengine"
	"github.com/crawlserv/crawlservpp-sub001/internal/store"
	"github.com/crawlserv/crawlservpp-sub001/internal/worker"
)

// Config is the parsed form of a parser Configuration body.
type Config struct {
	SleepIdle       int // milliseconds
	LockTTLMins     int
	IDFromURL       bool
	IDQueries       []uint64
	DateTimeQueries []uint64
	FieldQueries    []uint64
}

// DefaultConfig mirrors crawler.DefaultConfig's role.
func DefaultConfig() Config {
	return Config{SleepIdle: 5000, LockTTLMins: 5}
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
	if v, ok := get("parser", "id.from.url"); ok {
		cfg.IDFromURL = v == "true"
	}
	if v, ok := get("parser", "queries.id"); ok {
		cfg.IDQueries = parseIDList(v)
	}
	if v, ok := get("parser", "queries.datetime"); ok {
		cfg.DateTimeQueries = parseIDList(v)
	}
	if v, ok := get("parser", "queries.fields"); ok {
		cfg.FieldQueries = parseIDList(v)
	}
	return cfg, nil
}

func parseIDList(v string) []uint64 {
	var ids []uint64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.ParseUint(part, 10, 64); err == nil {
			ids = append(ids, n)
		}
	}
	return ids
}

// Parser is a concrete worker.Runner transforming crawled content into
// structured field values (spec §1).
type Parser struct {
	handle  *store.Handle
	w       *worker.Worker
	options store.ThreadOptions

	cfg Config

	idQueries       []*queryengine.Query
	dateTimeQueries []*queryengine.Query
	fieldQueries    []*queryengine.Query

	processed    int
	totalAtStart int
}

// New builds a Parser bound to handle/options/w, matching
// supervisor.RunnerFactory's signature modulo the concrete return type.
func New(handle *store.Handle, options store.ThreadOptions, w *worker.Worker) (*Parser, error) {
	return &Parser{handle: handle, options: options, w: w}, nil
}

func (p *Parser) OnInit(resumed bool) (bool, error) {
	configuration, err := p.handle.GetConfig(p.options.Config)
	if err != nil {
		return false, fmt.Errorf("parser: loading configuration: %w", err)
	}
	cfg, err := LoadConfig(configuration.Items)
	if err != nil {
		return false, err
	}
	p.cfg = cfg

	loadQueries := func(ids []uint64) ([]*queryengine.Query, error) {
		var out []*queryengine.Query
		for _, id := range ids {
			def, err := p.handle.GetQuery(id)
			if err != nil {
				return nil, fmt.Errorf("parser: loading query %d: %w", id, err)
			}
			q, err := queryengine.Compile(def)
			if err != nil {
				return nil, fmt.Errorf("parser: compiling query %q: %w", def.Name, err)
			}
			out = append(out, q)
		}
		return out, nil
	}

	if p.idQueries, err = loadQueries(cfg.IDQueries); err != nil {
		return false, err
	}
	if p.dateTimeQueries, err = loadQueries(cfg.DateTimeQueries); err != nil {
		return false, err
	}
	if p.fieldQueries, err = loadQueries(cfg.FieldQueries); err != nil {
		return false, err
	}

	if total, countErr := p.handle.CountURLs(p.options.UrlList); countErr == nil {
		p.totalAtStart = total
	}
	return true, nil
}

// OnTick selects the next URL awaiting parsing, runs every configured query
// against its latest crawled content, logs the extracted fields, and marks
// the URL finished — exercising the same select/lock/check/release/
// mark_finished lease sequence every module shares (spec §4.1).
func (p *Parser) OnTick() (bool, error) {
	u, found, err := p.handle.NextURL(p.options.UrlList, store.ModuleParser, p.w.Last())
	if err != nil {
		return false, err
	}
	if !found {
		if p.cfg.SleepIdle > 0 {
			time.Sleep(time.Duration(p.cfg.SleepIdle) * time.Millisecond)
		}
		return true, nil
	}

	lockable, err := p.handle.IsLockable(p.options.UrlList, u.ID, store.ModuleParser)
	if err != nil {
		return false, err
	}
	if !lockable {
		if u.ID > p.w.Last() {
			p.w.SetLast(u.ID)
		}
		return true, nil
	}

	lockTime, err := p.handle.Lock(p.options.UrlList, u.ID, store.ModuleParser, time.Duration(p.cfg.LockTTLMins)*time.Minute)
	if err != nil {
		return false, err
	}

	content, hasContent, err := p.handle.GetLatestContent(p.options.UrlList, u.ID)
	if err != nil {
		return false, err
	}
	if hasContent {
		fields := p.extractFields(u, content)
		p.w.Log(fmt.Sprintf("parsed %d field(s) from %s", len(fields), u.URL))
	} else {
		p.w.Log(fmt.Sprintf("no crawled content to parse: %s", u.URL))
	}

	held, err := p.handle.CheckLock(p.options.UrlList, u.ID, store.ModuleParser, lockTime)
	if err != nil {
		return false, err
	}
	if !held {
		return true, nil
	}
	if err := p.handle.MarkFinished(p.options.UrlList, u.ID, store.ModuleParser, lockTime); err != nil {
		return false, err
	}
	if err := p.handle.Release(p.options.UrlList, u.ID, store.ModuleParser, lockTime); err != nil {
		return false, err
	}

	p.processed++
	if u.ID > p.w.Last() {
		p.w.SetLast(u.ID)
	}
	total := p.totalAtStart
	if p.processed > total {
		total = p.processed
	}
	if total > 0 {
		p.w.SetProgress(float32(p.processed) / float32(total))
	}
	return true, nil
}

// extractFields runs every id/datetime/field query against content's body
// and keeps each query's first match (GetFirst), whatever its result-mode
// flags; a query that errors or finds nothing adds no field (spec §4.3).
func (p *Parser) extractFields(u store.Url, content store.CrawledContent) map[string]string {
	fields := make(map[string]string)
	run := func(prefix string, queries []*queryengine.Query) {
		for i, q := range queries {
			subject := p.subject(q, content)
			if value, ok, err := q.GetFirst(subject); err == nil && ok {
				fields[fmt.Sprintf("%s.%d", prefix, i)] = value
			}
		}
	}
	if p.cfg.IDFromURL {
		fields["id.0"] = u.URL
	} else {
		run("id", p.idQueries)
	}
	run("datetime", p.dateTimeQueries)
	run("field", p.fieldQueries)
	return fields
}

func (p *Parser) subject(q *queryengine.Query, content store.CrawledContent) any {
	if q.Def.Kind == store.QueryKindXPath {
		doc, err := queryengine.ParseDocument(string(content.Content))
		if err != nil {
			return ""
		}
		return doc
	}
	return string(content.Content)
}

func (p *Parser) OnPause()   {}
func (p *Parser) OnUnpause() {}

func (p *Parser) OnClear(interrupted bool) {
	if err := p.handle.ReleaseAllLocks(p.options.UrlList, store.ModuleParser); err != nil {
		p.w.Log(fmt.Sprintf("releasing locks on shutdown: %v", err))
	}
}

