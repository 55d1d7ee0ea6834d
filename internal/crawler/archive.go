package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/crawlserv/crawlservpp-sub001/internal/queryengine"
	"github.com/crawlserv/crawlservpp-sub001/internal/store"
	"github.com/crawlserv/crawlservpp-sub001/internal/urix"
)

// maxTimemapPages bounds Memento pagination so a misbehaving archive cannot
// hang a Worker forever; spec §5 requires inner loops to observe the
// interrupt flag "at every network round-trip", which fetchTimemap's
// per-page IsRunning check satisfies.
const maxTimemapPages = 20

// maxReferenceRedirects bounds "found capture at " redirect chains (spec
// §4.5.5); a well-formed archive never needs more than one or two hops.
const maxReferenceRedirects = 5

// walkArchives implements spec §4.5.5 for every configured archive: fetch
// and paginate the Memento timemap, then for every still-leased, not yet
// fetched memento, fetch and persist it (following reference redirects),
// extracting archived links the same way as a live fetch.
//
// On a timemap fetch failure, if crawler.retry.archive is set the URL is
// scheduled for an archive-only retry (c.retry) and walkArchives returns
// without error — the live fetch for u has already succeeded or was
// skipped, so this never escalates to a Worker-fatal error.
func (c *Crawler) walkArchives(u store.Url, lockTime time.Time) error {
	for _, archive := range c.cfg.Archives {
		if !c.w.IsRunning() {
			return nil
		}
		if err := c.walkOneArchive(archive, u, lockTime); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) walkOneArchive(archive Archive, u store.Url, lockTime time.Time) error {
	sub := subURL(u.URL)
	timemapURL := archive.TimemapPrefix + c.website.Domain + sub

	entries, err := c.fetchTimemap(timemapURL)
	if err != nil {
		c.w.Log(fmt.Sprintf("archive %q timemap fetch failed: %v", archive.Name, err))
		if c.cfg.RetryArchive {
			c.retry = &pendingRetry{urlID: u.ID, url: u.URL, archiveOnly: true}
		}
		return nil
	}

	for _, entry := range entries {
		if !c.w.IsRunning() {
			return nil
		}

		held, err := c.handle.CheckLock(c.options.UrlList, u.ID, store.ModuleCrawler, lockTime)
		if err != nil {
			return err
		}
		if !held {
			return nil
		}

		exists, err := c.handle.HasArchivedContent(c.options.UrlList, u.ID, entry.Datetime)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		if err := c.fetchOneMemento(archive, u, entry, sub); err != nil {
			c.w.Log(fmt.Sprintf("archive %q memento %s failed: %v", archive.Name, entry.URL, err))
		}
	}
	return nil
}

// fetchTimemap fetches and parses a Memento timemap, following its
// rel="timemap" pagination link up to maxTimemapPages times.
func (c *Crawler) fetchTimemap(timemapURL string) ([]urix.MementoEntry, error) {
	var all []urix.MementoEntry
	next := timemapURL
	for page := 0; page < maxTimemapPages && next != ""; page++ {
		if page > 0 && !c.w.IsRunning() {
			break
		}
		result, err := c.fetch.Fetch(context.Background(), next)
		if err != nil {
			return nil, err
		}
		if result.StatusCode >= 400 {
			return nil, fmt.Errorf("status %d", result.StatusCode)
		}
		entries, nextTimemap := urix.ParseMementoLinkFormat(string(result.Body))
		all = append(all, entries...)
		next = nextTimemap
	}
	return all, nil
}

// fetchOneMemento fetches one memento, following reference redirects, and
// on success persists an archived CrawledContent row plus archived links
// (spec §4.5.5).
func (c *Crawler) fetchOneMemento(archive Archive, u store.Url, entry urix.MementoEntry, sub string) error {
	mementoURL := entry.URL
	crawlTime := entry.Datetime

	for attempt := 0; attempt <= maxReferenceRedirects; attempt++ {
		result, err := c.fetch.Fetch(context.Background(), mementoURL)
		if err != nil {
			return err
		}

		body := string(result.Body)
		if ts, ok := urix.ParseReferenceRedirect(body); ok {
			sqlTs, convErr := urix.MementoTimestampToSQL(ts)
			if convErr != nil {
				return convErr
			}
			parsed, parseErr := time.Parse("2006-01-02 15:04:05", sqlTs)
			if parseErr != nil {
				return parseErr
			}
			crawlTime = parsed
			mementoURL = archive.MementoPrefix + ts + sub
			continue
		}

		doc, err := queryengine.ParseDocument(body)
		if err != nil {
			return fmt.Errorf("parsing archived HTML: %w", err)
		}
		content := result.Body
		if c.cfg.XML {
			content = []byte(doc.OuterHTML())
		}

		contentID, err := c.handle.InsertCrawledContent(c.options.UrlList, store.CrawledContent{
			UrlID:        u.ID,
			CrawlTime:    crawlTime,
			Archived:     true,
			ResponseCode: result.StatusCode,
			ContentType:  result.ContentType,
			Content:      content,
		})
		if err != nil {
			return err
		}
		_ = contentID

		base, parseErr := url.Parse(mementoURL)
		if parseErr != nil {
			return nil
		}
		fr := fetchResult{body: result.Body, contentType: result.ContentType, statusCode: result.StatusCode, doc: doc}
		return c.extractLinks(u.ID, base, fr, archive.MementoPrefix, true)
	}
	return fmt.Errorf("too many reference redirects for %s", entry.URL)
}

// subURL returns the path (plus query/fragment) portion of rawURL, the
// `sub_url` the archive timemap/memento URLs are built from (spec §4.5.5).
func subURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	sub := u.RequestURI()
	if !strings.HasPrefix(sub, "/") {
		sub = "/" + sub
	}
	return sub
}
