package crawler

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/crawlserv/crawlservpp-sub001/internal/fetcher"
	"github.com/crawlserv/crawlservpp-sub001/internal/queryengine"
	"github.com/crawlserv/crawlservpp-sub001/internal/store"
	"github.com/crawlserv/crawlservpp-sub001/internal/worker"
)

// crawlMode distinguishes the two URL-selection sub-modes of spec §4.5.1.
type crawlMode int

const (
	modeManual crawlMode = iota
	modeAutomatic
)

// Crawler is the concrete worker.Runner that drives one URL list through
// select/fetch/filter/persist/link-extract/archive-walk (spec §4.5),
// grounded on crawler/crawler.go's crawlPage fetch loop generalised to the
// lease-based selection protocol, plus ThreadCrawler.cpp for the archive
// and retry accounting no Go example in the pack covers.
type Crawler struct {
	handle  *store.Handle
	w       *worker.Worker
	options store.ThreadOptions
	logger  *log.Logger

	cfg   Config
	fetch *fetcher.Fetcher
	rules *politeness

	website store.Website
	urlList store.UrlList

	linkQueries             []*queryengine.Query
	whitelistTypeQueries    []*queryengine.Query
	blacklistTypeQueries    []*queryengine.Query
	whitelistURLQueries     []*queryengine.Query
	blacklistURLQueries     []*queryengine.Query
	whitelistContentQueries []*queryengine.Query
	blacklistContentQueries []*queryengine.Query

	mode            crawlMode
	manualQueue     []string
	manualIndex     int
	startPageDone   bool
	loggedAutomatic bool

	retry       *pendingRetry
	retryCounts map[uint64]int

	lastHTTPRequest time.Time

	processed    int
	totalAtStart int

	ticks     uint64
	startedAt time.Time
}

// New builds a Crawler bound to handle/options/w. It takes
// supervisor.RunnerFactory's parameters but returns *Crawler, so it is
// registered through a wrapping closure:
//
//	supervisor.RegisterFactory(store.ModuleCrawler, func(h *store.Handle, o store.ThreadOptions, w *worker.Worker) (worker.Runner, error) {
//		return crawler.New(h, o, w)
//	})
func New(handle *store.Handle, options store.ThreadOptions, w *worker.Worker) (*Crawler, error) {
	return &Crawler{
		handle:  handle,
		options: options,
		w:       w,
		logger:  log.Default(),
	}, nil
}

// OnInit loads the website, URL list, and configuration, compiles every
// configured query once, builds the Fetcher, and picks the starting
// selection mode (spec §4.4 on_init, §4.5.1 "manual mode iff last_id==0").
func (c *Crawler) OnInit(resumed bool) (bool, error) {
	website, err := c.handle.GetWebsite(c.options.Website)
	if err != nil {
		return false, fmt.Errorf("crawler: loading website: %w", err)
	}
	c.website = website

	urlList, err := c.handle.GetUrlList(c.options.UrlList)
	if err != nil {
		return false, fmt.Errorf("crawler: loading url list: %w", err)
	}
	c.urlList = urlList

	configuration, err := c.handle.GetConfig(c.options.Config)
	if err != nil {
		return false, fmt.Errorf("crawler: loading configuration: %w", err)
	}
	cfg, warnings, err := LoadConfig(configuration.Items)
	if err != nil {
		return false, fmt.Errorf("crawler: parsing configuration: %w", err)
	}
	for _, warning := range warnings {
		c.w.Log(warning)
	}
	c.cfg = cfg

	c.fetch = fetcher.New(cfg.Fetcher, c.logger)

	c.rules = newPoliteness(cfg.FixedDelay)
	if cfg.ObeyRobots {
		if base, parseErr := url.Parse("http://" + website.Domain); parseErr == nil {
			c.rules.loadRobots(c.fetch, cfg.Fetcher.UserAgent, base)
		}
	}

	if c.linkQueries, err = c.loadQueries(cfg.LinkQueries, false); err != nil {
		return false, err
	}
	if c.whitelistTypeQueries, err = c.loadQueries(cfg.WhitelistTypeQueries, true); err != nil {
		return false, err
	}
	if c.blacklistTypeQueries, err = c.loadQueries(cfg.BlacklistTypeQueries, true); err != nil {
		return false, err
	}
	if c.whitelistURLQueries, err = c.loadQueries(cfg.WhitelistURLQueries, false); err != nil {
		return false, err
	}
	if c.blacklistURLQueries, err = c.loadQueries(cfg.BlacklistURLQueries, false); err != nil {
		return false, err
	}
	if c.whitelistContentQueries, err = c.loadQueries(cfg.WhitelistContentQueries, false); err != nil {
		return false, err
	}
	if c.blacklistContentQueries, err = c.loadQueries(cfg.BlacklistContentQueries, false); err != nil {
		return false, err
	}

	c.retryCounts = make(map[uint64]int)
	c.manualQueue = expandCustomURLs(cfg.CustomURLs, cfg.CustomCounters)

	if c.w.Last() == 0 {
		c.mode = modeManual
	} else {
		c.mode = modeAutomatic
	}

	if total, countErr := c.handle.CountURLs(c.options.UrlList); countErr == nil {
		c.totalAtStart = total
	}

	c.startedAt = time.Now()
	c.w.SetStatusMessage(fmt.Sprintf("crawling %s", website.Domain))
	return true, nil
}

// loadQueries fetches and compiles every query id; when restrictToRegex is
// set (queries.whitelist.types/blacklist.types, spec §4.5.2), a non-regex
// query produces a warning and is dropped rather than failing the Worker.
func (c *Crawler) loadQueries(ids []uint64, restrictToRegex bool) ([]*queryengine.Query, error) {
	var out []*queryengine.Query
	for _, id := range ids {
		def, err := c.handle.GetQuery(id)
		if err != nil {
			return nil, fmt.Errorf("crawler: loading query %d: %w", id, err)
		}
		if restrictToRegex && def.Kind != store.QueryKindRegex {
			c.w.Log(fmt.Sprintf("query %q is not a regex query; content-type filters only support regex, ignored", def.Name))
			continue
		}
		q, err := queryengine.Compile(def)
		if err != nil {
			return nil, fmt.Errorf("crawler: compiling query %q: %w", def.Name, err)
		}
		out = append(out, q)
	}
	return out, nil
}

// OnTick runs one pass of the pipeline described in spec §4.5: select,
// and — unless idle or archive-only — fetch/filter, persist, extract
// links, and walk archives, finishing with a success/skip/retry
// disposition (spec §4.5.6).
func (c *Crawler) OnTick() (bool, error) {
	c.ticks++

	sel, err := c.selectNext()
	if err != nil {
		return false, err
	}
	if !sel.ok {
		if c.cfg.SleepIdle > 0 {
			time.Sleep(c.cfg.SleepIdle)
		}
		return true, nil
	}

	if sel.archiveOnly {
		if err := c.walkArchives(sel.url, sel.lockTime); err != nil {
			return false, err
		}
		if c.retry != nil {
			if err := c.handle.Release(c.options.UrlList, sel.url.ID, store.ModuleCrawler, sel.lockTime); err != nil {
				return false, err
			}
			return true, nil
		}
		if err := c.finishSuccess(sel.url, sel.lockTime); err != nil {
			return false, err
		}
		return true, nil
	}

	fr, oc, reason, err := c.fetchAndFilter(sel.url.URL)
	if err != nil {
		return false, err
	}

	switch oc {
	case outcomeRetry:
		if err := c.scheduleRetry(sel.url, sel.lockTime, false, reason); err != nil {
			return false, err
		}
		return true, nil
	case outcomeSkip:
		if err := c.finishSkip(sel.url, sel.lockTime, reason); err != nil {
			return false, err
		}
		return true, nil
	}

	held, err := c.handle.CheckLock(c.options.UrlList, sel.url.ID, store.ModuleCrawler, sel.lockTime)
	if err != nil {
		return false, err
	}
	if !held {
		c.w.Log(fmt.Sprintf("lease expired before content could be persisted — abandoning: %s", sel.url.URL))
		return true, nil
	}

	if err := c.persist(sel.url, fr); err != nil {
		return false, err
	}

	if base, parseErr := url.Parse(sel.url.URL); parseErr == nil {
		if err := c.extractLinks(sel.url.ID, base, fr, "", false); err != nil {
			return false, err
		}
	}

	if len(c.cfg.Archives) > 0 {
		if err := c.walkArchives(sel.url, sel.lockTime); err != nil {
			return false, err
		}
		if c.retry != nil {
			if err := c.handle.Release(c.options.UrlList, sel.url.ID, store.ModuleCrawler, sel.lockTime); err != nil {
				return false, err
			}
			return true, nil
		}
	}

	if err := c.finishSuccess(sel.url, sel.lockTime); err != nil {
		return false, err
	}
	return true, nil
}

// persist writes the live CrawledContent row (spec §4.5.3): the cleaned DOM
// serialised back to markup when crawler.xml is set, otherwise the raw
// body; content-type lowercased, response code stored verbatim.
func (c *Crawler) persist(u store.Url, fr fetchResult) error {
	content := fr.body
	if c.cfg.XML {
		content = []byte(fr.doc.OuterHTML())
	}
	_, err := c.handle.InsertCrawledContent(c.options.UrlList, store.CrawledContent{
		UrlID:        u.ID,
		Archived:     false,
		ResponseCode: fr.statusCode,
		ContentType:  strings.ToLower(fr.contentType),
		Content:      content,
	})
	return err
}

// OnPause/OnUnpause: the Crawler holds no module-specific resource across a
// pause (its Fetcher is idle between ticks), so these are no-ops beyond
// satisfying the Runner contract (spec §4.4).
func (c *Crawler) OnPause()   {}
func (c *Crawler) OnUnpause() {}

// OnClear releases any lease the Crawler might still be holding and logs
// the tick count over the wall-clock time since OnInit; that interval
// includes pause and idle time, which are not subtracted. Run/pause time
// totals themselves are logged by the Worker.
func (c *Crawler) OnClear(interrupted bool) {
	if err := c.handle.ReleaseAllLocks(c.options.UrlList, store.ModuleCrawler); err != nil {
		c.w.Log(fmt.Sprintf("releasing locks on shutdown: %v", err))
	}
	elapsed := time.Since(c.startedAt).Truncate(time.Second)
	c.w.Log(fmt.Sprintf("%d ticks over %s", c.ticks, elapsed))
}
