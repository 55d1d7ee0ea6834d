package crawler

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/crawlserv/crawlservpp-sub001/internal/queryengine"
	"github.com/crawlserv/crawlservpp-sub001/internal/store"
)

// fetchResult carries a successfully fetched and filtered page through to
// the persist/link-extraction steps (spec §4.5.2, §4.5.3).
type fetchResult struct {
	body        []byte
	contentType string
	statusCode  int
	doc         *queryengine.Document
}

// fetchAndFilter performs spec §4.5.2 in full: HTTP throttling, the fetch
// itself, status-code disposition, content-type filtering, DOM parsing, and
// content filtering. A nil fetchResult with outcomeSuccess never occurs;
// callers switch on the returned outcome first.
func (c *Crawler) fetchAndFilter(rawURL string) (fetchResult, outcome, string, error) {
	if parsed, parseErr := url.Parse(rawURL); parseErr == nil && !c.rules.allowed(parsed.RequestURI()) {
		return fetchResult{}, outcomeSkip, "disallowed by robots.txt", nil
	}

	c.throttleHTTP()

	result, err := c.fetch.Fetch(context.Background(), rawURL)
	c.lastHTTPRequest = time.Now()
	c.rules.updateLastDelay(result.Duration)
	if err != nil {
		return fetchResult{}, outcomeRetry, fmt.Sprintf("transport error: %v", err), nil
	}

	if result.StatusCode >= 400 && result.StatusCode < 600 {
		if c.cfg.RetryHTTP[result.StatusCode] {
			return fetchResult{}, outcomeRetry, fmt.Sprintf("HTTP %d", result.StatusCode), nil
		}
		return fetchResult{}, outcomeSkip, fmt.Sprintf("HTTP %d", result.StatusCode), nil
	}

	if !c.contentTypeAllowed(result.ContentType) {
		return fetchResult{}, outcomeSkip, fmt.Sprintf("content-type %q rejected by whitelist/blacklist", result.ContentType), nil
	}

	doc, err := queryengine.ParseDocument(string(result.Body))
	if err != nil {
		return fetchResult{}, outcomeSkip, fmt.Sprintf("failed to parse HTML: %v", err), nil
	}

	fr := fetchResult{body: result.Body, contentType: result.ContentType, statusCode: result.StatusCode, doc: doc}

	allowed, err := c.contentAllowed(fr)
	if err != nil {
		return fetchResult{}, outcomeSkip, fmt.Sprintf("content filter query failed: %v", err), nil
	}
	if !allowed {
		return fetchResult{}, outcomeSkip, "content rejected by whitelist/blacklist", nil
	}

	return fr, outcomeSuccess, "", nil
}

// throttleHTTP honours crawler.sleep.http and the politeness delay (the
// largest of robots.txt crawl-delay, a random value around
// crawler.delay.fixed, and the squared last response time): if less time
// than the larger of the two has elapsed
// since the last HTTP request, sleep the remainder (spec §4.5.2).
func (c *Crawler) throttleHTTP() {
	if c.lastHTTPRequest.IsZero() {
		return
	}
	wait := c.cfg.SleepHTTP
	if d := c.rules.delay(); d > wait {
		wait = d
	}
	if wait <= 0 {
		return
	}
	elapsed := time.Since(c.lastHTTPRequest)
	if elapsed < wait {
		time.Sleep(wait - elapsed)
	}
}

// contentTypeAllowed applies queries.whitelist.types/blacklist.types
// against contentType. Only regex queries are valid here; non-regex queries
// were already rejected with a warning at compile time (spec §4.5.2).
func (c *Crawler) contentTypeAllowed(contentType string) bool {
	if len(c.whitelistTypeQueries) > 0 {
		for _, q := range c.whitelistTypeQueries {
			if ok, err := q.GetBool(contentType); err == nil && ok {
				return true
			}
		}
		return false
	}
	for _, q := range c.blacklistTypeQueries {
		if ok, err := q.GetBool(contentType); err == nil && ok {
			return false
		}
	}
	return true
}

// urlAllowed applies queries.whitelist.urls/blacklist.urls against rawURL,
// used at link-extraction time and at selection time for custom URLs (spec
// §4.5.2).
func (c *Crawler) urlAllowed(rawURL string) bool {
	if len(c.whitelistURLQueries) > 0 {
		for _, q := range c.whitelistURLQueries {
			if ok, err := q.GetBool(rawURL); err == nil && ok {
				return true
			}
		}
		return false
	}
	for _, q := range c.blacklistURLQueries {
		if ok, err := q.GetBool(rawURL); err == nil && ok {
			return false
		}
	}
	return true
}

// contentAllowed applies the content whitelist/blacklist, which may mix
// regex queries (run against the raw body) and xpath queries (run against
// the parsed DOM) in the same list (spec §4.5.2 "supports both regex on
// raw body and xpath on DOM").
func (c *Crawler) contentAllowed(fr fetchResult) (bool, error) {
	eval := func(q *queryengine.Query) (bool, error) {
		if q.Def.Kind == store.QueryKindXPath {
			return q.GetBool(fr.doc)
		}
		return q.GetBool(string(fr.body))
	}

	if len(c.whitelistContentQueries) > 0 {
		for _, q := range c.whitelistContentQueries {
			ok, err := eval(q)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	for _, q := range c.blacklistContentQueries {
		ok, err := eval(q)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}
