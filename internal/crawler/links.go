package crawler

import (
	"fmt"
	"net/url"

	"github.com/crawlserv/crawlservpp-sub001/internal/queryengine"
	"github.com/crawlserv/crawlservpp-sub001/internal/store"
	"github.com/crawlserv/crawlservpp-sub001/internal/urix"
)

// linkBatchSize bounds how many URLs are inserted and locked under one
// table-lock window (spec §4.5.4 step 5 "batched every 500 URLs to bound
// lock duration").
const linkBatchSize = 500

// extractLinks runs every queries.links query against fr, normalises and
// resolves every match against base, and inserts the surviving URLs plus
// Link rows in batches of linkBatchSize (spec §4.5.4). archivePrefix, when
// non-empty, is stripped from each raw link before resolution (the archive-
// phase exception of step 2); archived marks the resulting Link rows.
func (c *Crawler) extractLinks(fromID uint64, base *url.URL, fr fetchResult, archivePrefix string, archived bool) error {
	raws, err := c.collectLinkMatches(fr)
	if err != nil {
		return err
	}
	if len(raws) == 0 {
		return nil
	}

	resolved := make([]string, 0, len(raws))
	for _, raw := range c.dedupeLinks(raws) {
		final, ok := c.normalizeLink(base, raw, archivePrefix)
		if !ok {
			continue
		}
		resolved = append(resolved, final)
	}

	for start := 0; start < len(resolved); start += linkBatchSize {
		end := start + linkBatchSize
		if end > len(resolved) {
			end = len(resolved)
		}
		if err := c.insertLinkBatch(fromID, resolved[start:end], archived); err != nil {
			return err
		}
		if !c.w.IsRunning() {
			// Spec §5 "Cancellation": long-running inner loops must observe
			// the interrupt flag at least every 500 iterations; the batch
			// boundary already satisfies that cadence.
			break
		}
	}
	return nil
}

// collectLinkMatches runs every configured queries.links query, using
// get_all for multi-result queries and get_first for single-result ones
// (spec §4.5.4 "collect either first or all matches, per query result-mode").
func (c *Crawler) collectLinkMatches(fr fetchResult) ([]string, error) {
	var raws []string
	for _, q := range c.linkQueries {
		subject := c.querySubject(q, fr)
		if q.Def.ResultMulti {
			matches, err := q.GetAll(subject)
			if err != nil {
				return nil, fmt.Errorf("crawler: link query %q: %w", q.Def.Name, err)
			}
			raws = append(raws, matches...)
			continue
		}
		match, ok, err := q.GetFirst(subject)
		if err != nil {
			return nil, fmt.Errorf("crawler: link query %q: %w", q.Def.Name, err)
		}
		if ok {
			raws = append(raws, match)
		}
	}
	return raws, nil
}

func (c *Crawler) querySubject(q *queryengine.Query, fr fetchResult) any {
	if q.Def.Kind == store.QueryKindXPath {
		return fr.doc
	}
	return string(fr.body)
}

func (c *Crawler) dedupeLinks(raws []string) []string {
	seen := make(map[string]bool, len(raws))
	out := make([]string, 0, len(raws))
	for _, r := range raws {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// normalizeLink implements spec §4.5.4 steps 1-4: fragment-strip, escape,
// resolve (rejecting off-domain links), query-parameter allow/deny-list,
// and the 2000-byte length cap.
func (c *Crawler) normalizeLink(base *url.URL, raw string, archivePrefix string) (string, bool) {
	if archivePrefix != "" {
		raw = urix.StripArchivePrefix(archivePrefix, raw)
	}
	raw = urix.StripFragment(raw)
	raw = urix.Escape(raw)

	resolved, ok := urix.Resolve(base, c.website.Domain, raw)
	if !ok {
		return "", false
	}

	urix.FilterParams(resolved, c.cfg.ParamsWhitelist, c.cfg.ParamsBlacklist)

	final := resolved.String()
	if urix.TooLong(final) {
		c.w.Log(fmt.Sprintf("link too long (%d bytes), rejected: %s", len(final), final))
		return "", false
	}
	if !c.urlAllowed(final) {
		return "", false
	}
	return final, true
}

// insertLinkBatch inserts every URL in a batch (if absent) and a Link row
// for each, under the Store's own short table lock (spec §4.5.4 step 5).
func (c *Crawler) insertLinkBatch(fromID uint64, urls []string, archived bool) error {
	toIDs := make([]uint64, 0, len(urls))
	for _, u := range urls {
		id, _, err := c.handle.InsertURL(c.options.UrlList, u, false)
		if err != nil {
			return fmt.Errorf("crawler: inserting link target %q: %w", u, err)
		}
		toIDs = append(toIDs, id)
	}
	if _, err := c.handle.InsertLinkBatch(c.options.UrlList, fromID, toIDs, archived); err != nil {
		return fmt.Errorf("crawler: inserting link batch from %d: %w", fromID, err)
	}
	return nil
}
