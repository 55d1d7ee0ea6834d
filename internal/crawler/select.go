package crawler

import (
	"fmt"
	"time"

	"github.com/crawlserv/crawlservpp-sub001/internal/store"
)

// selection is one URL handed to the fetch/filter/persist pipeline for this
// tick, or ok=false when there was nothing to do (idle).
type selection struct {
	url         store.Url
	lockTime    time.Time
	archiveOnly bool
	ok          bool
}

// pendingRetry tracks the one URL this Crawler is currently retrying,
// across both manual and automatic mode (spec §4.5.1 "any current retry
// URL still holding a lease"; §4.5.6 "keep the URL as the next tick's work
// item"). archiveOnly is set once a live fetch has already succeeded and
// only the archive walk still needs to finish (spec §4.5.5 "the next tick
// will skip the live fetch and only walk archives").
type pendingRetry struct {
	urlID       uint64
	url         string
	archiveOnly bool
}

// selectNext implements spec §4.5.1: a pending retry URL is re-locked
// first, then manual mode (start page, custom URLs with counter expansion)
// until exhausted, then automatic mode via the lease protocol's
// next_url/lock sequence. The pending retry is consumed here; this tick's
// pipeline sets c.retry again only if the URL needs another retry.
func (c *Crawler) selectNext() (selection, error) {
	if c.retry != nil {
		retry := c.retry
		c.retry = nil
		lockable, err := c.handle.IsLockable(c.options.UrlList, retry.urlID, store.ModuleCrawler)
		if err != nil {
			return selection{}, err
		}
		if lockable {
			lockTime, err := c.handle.Lock(c.options.UrlList, retry.urlID, store.ModuleCrawler, c.cfg.LockTTL)
			if err != nil {
				return selection{}, err
			}
			return selection{
				url:         store.Url{ID: retry.urlID, UrlList: c.options.UrlList, URL: retry.url},
				lockTime:    lockTime,
				archiveOnly: retry.archiveOnly,
				ok:          true,
			}, nil
		}
		// The lease was released when the retry was scheduled and another
		// holder has locked the URL since; drop the retry and fall through
		// to ordinary selection.
	}

	if c.mode == modeManual {
		sel, ok, err := c.selectManual()
		if err != nil {
			return selection{}, err
		}
		if ok {
			return sel, nil
		}
		c.enterAutomatic()
	}

	return c.selectAutomatic()
}

// selectManual drains the start page, then the expanded custom URL queue,
// in that order (spec §4.5.1).
func (c *Crawler) selectManual() (selection, bool, error) {
	if c.cfg.StartPage != "" && !c.startPageDone {
		c.startPageDone = true
		sel, ok, err := c.tryLockManualURL(c.cfg.StartPage, c.cfg.RecrawlStart)
		if err != nil {
			return selection{}, false, err
		}
		if ok {
			return sel, true, nil
		}
	}

	for c.manualIndex < len(c.manualQueue) {
		raw := c.manualQueue[c.manualIndex]
		c.manualIndex++
		if !c.urlAllowed(raw) {
			c.w.Log(fmt.Sprintf("custom URL rejected by whitelist/blacklist: %s", raw))
			continue
		}
		sel, ok, err := c.tryLockManualURL(raw, c.cfg.CustomRecrawl)
		if err != nil {
			return selection{}, false, err
		}
		if ok {
			return sel, true, nil
		}
	}

	return selection{}, false, nil
}

// tryLockManualURL inserts raw (if absent) and attempts to lock it, honouring
// recrawl: if the URL already has live content and recrawl is false, it is
// skipped rather than re-fetched (spec §8 "count(... archived=false ...) <=
// 1 when crawler.recrawl=false").
func (c *Crawler) tryLockManualURL(raw string, recrawl bool) (selection, bool, error) {
	urlID, _, err := c.handle.InsertURL(c.options.UrlList, raw, true)
	if err != nil {
		return selection{}, false, err
	}
	if !recrawl {
		n, err := c.handle.CountLiveContent(c.options.UrlList, urlID)
		if err != nil {
			return selection{}, false, err
		}
		if n > 0 {
			return selection{}, false, nil
		}
	}
	lockable, err := c.handle.IsLockable(c.options.UrlList, urlID, store.ModuleCrawler)
	if err != nil {
		return selection{}, false, err
	}
	if !lockable {
		c.w.Log(fmt.Sprintf("locked — skipped: %s", raw))
		return selection{}, false, nil
	}
	lockTime, err := c.handle.Lock(c.options.UrlList, urlID, store.ModuleCrawler, c.cfg.LockTTL)
	if err != nil {
		return selection{}, false, err
	}
	return selection{url: store.Url{ID: urlID, UrlList: c.options.UrlList, URL: raw, Manual: true}, lockTime: lockTime, ok: true}, true, nil
}

// enterAutomatic switches the Crawler from manual to automatic mode,
// logging the transition exactly once (spec §4.5.1 "switches to recoverable
// AUTOMATIC mode").
func (c *Crawler) enterAutomatic() {
	c.mode = modeAutomatic
	if !c.loggedAutomatic {
		c.w.Log("switches to recoverable AUTOMATIC mode")
		c.loggedAutomatic = true
	}
}

// selectAutomatic implements next_url/lock with contention handling (spec
// §4.5.1 "on contention, it advances and logs a skip").
func (c *Crawler) selectAutomatic() (selection, error) {
	for {
		u, found, err := c.handle.NextURL(c.options.UrlList, store.ModuleCrawler, c.w.Last())
		if err != nil {
			return selection{}, err
		}
		if !found {
			return selection{}, nil
		}

		lockable, err := c.handle.IsLockable(c.options.UrlList, u.ID, store.ModuleCrawler)
		if err != nil {
			return selection{}, err
		}
		if !lockable {
			c.w.Log(fmt.Sprintf("locked — skipped: %s", u.URL))
			c.advance(u.ID)
			continue
		}

		lockTime, err := c.handle.Lock(c.options.UrlList, u.ID, store.ModuleCrawler, c.cfg.LockTTL)
		if err != nil {
			return selection{}, err
		}
		return selection{url: u, lockTime: lockTime, ok: true}, nil
	}
}
