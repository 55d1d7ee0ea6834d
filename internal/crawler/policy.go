package crawler

import (
	"fmt"
	"time"

	"github.com/crawlserv/crawlservpp-sub001/internal/store"
)

// outcome is the result of one pipeline pass over a selected URL (spec
// §4.5.6).
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeSkip
	outcomeRetry
)

// advance moves the automatic-mode resume cursor past urlID and updates
// progress, used both for a clean success and for a lock-contention skip in
// automatic mode (spec §4.5.6 "Skip ... do not advance last_id in manual
// mode"  — automatic mode, with no separate counter, advances last_id on
// every disposition so next_url makes forward progress).
func (c *Crawler) advance(urlID uint64) {
	if urlID > c.w.Last() {
		c.w.SetLast(urlID)
	}
	c.updateProgress()
}

// updateProgress reports the monotone `processed / max(total_at_start,
// processed)` fraction (spec §9 Open Question decision recorded in
// DESIGN.md), since the true denominator (remaining URL count) is not known
// without a second table scan.
func (c *Crawler) updateProgress() {
	c.processed++
	total := c.totalAtStart
	if c.processed > total {
		total = c.processed
	}
	if total == 0 {
		return
	}
	c.w.SetProgress(float32(c.processed) / float32(total))
}

// finishSuccess implements spec §4.5.6 "Success": mark_finished, release,
// reset retry counter, advance last_id (automatic mode) and progress.
func (c *Crawler) finishSuccess(u store.Url, lockTime time.Time) error {
	if err := c.handle.MarkFinished(c.options.UrlList, u.ID, store.ModuleCrawler, lockTime); err != nil {
		return err
	}
	if err := c.handle.Release(c.options.UrlList, u.ID, store.ModuleCrawler, lockTime); err != nil {
		return err
	}
	delete(c.retryCounts, u.ID)
	c.retry = nil
	if c.mode == modeAutomatic {
		c.advance(u.ID)
	} else {
		c.updateProgress()
	}
	return nil
}

// finishSkip implements spec §4.5.6 "Skip": same finalisation as success,
// but manual mode does not advance last_id (it already advanced its own
// queue index/counter when the URL was selected).
func (c *Crawler) finishSkip(u store.Url, lockTime time.Time, reason string) error {
	c.w.Log(fmt.Sprintf("skipped — %s: %s", reason, u.URL))
	if err := c.handle.MarkFinished(c.options.UrlList, u.ID, store.ModuleCrawler, lockTime); err != nil {
		return err
	}
	if err := c.handle.Release(c.options.UrlList, u.ID, store.ModuleCrawler, lockTime); err != nil {
		return err
	}
	delete(c.retryCounts, u.ID)
	c.retry = nil
	if c.mode == modeAutomatic {
		c.advance(u.ID)
	} else {
		c.updateProgress()
	}
	return nil
}

// scheduleRetry implements spec §4.5.6 "Retry": increments the retry
// counter, escalating to a skip once crawler.retries is exceeded (-1 means
// unlimited), otherwise keeping u as the next tick's work item and backing
// off crawler.sleep.error milliseconds. Resetting the Fetcher connection is
// part of retry.
func (c *Crawler) scheduleRetry(u store.Url, lockTime time.Time, archiveOnly bool, cause string) error {
	c.retryCounts[u.ID]++
	count := c.retryCounts[u.ID]
	if c.cfg.Retries >= 0 && count > c.cfg.Retries {
		c.w.Log(fmt.Sprintf("retries exhausted (%d), escalating to skip — %s: %s", count, cause, u.URL))
		return c.finishSkip(u, lockTime, cause)
	}

	c.w.Log(fmt.Sprintf("retry %d/%s — %s: %s", count, retriesLabel(c.cfg.Retries), cause, u.URL))
	// Release this attempt's lease; the lease will be reacquired on the
	// next tick via the retained c.retry bookkeeping, matching the
	// check-then-act discipline (no write may target a lease we can't
	// reconfirm).
	if err := c.handle.Release(c.options.UrlList, u.ID, store.ModuleCrawler, lockTime); err != nil {
		return err
	}
	c.retry = &pendingRetry{urlID: u.ID, url: u.URL, archiveOnly: archiveOnly}
	c.fetch.Reset(c.cfg.SleepError)
	return nil
}

func retriesLabel(retries int) string {
	if retries < 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", retries)
}
