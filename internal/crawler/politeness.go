package crawler

import (
	"context"
	"math"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/crawlserv/crawlservpp-sub001/internal/fetcher"
)

// robotsTxtPath is the well-known location fetched once per Worker start
// when crawler.robots is enabled.
const robotsTxtPath = "/robots.txt"

// politeness holds one website's robots.txt group plus the delay bookkeeping
// of spec §4.5.2's rate-limiting requirement, grounded on
// crawler/crawlingrules.go's CrawlingRules: the delay is the largest of
// robots.txt's own crawl-delay, a random value around crawler.delay.fixed,
// and the square of the last response time.
type politeness struct {
	mu         sync.RWMutex
	group      *robotstxt.Group
	fixedDelay time.Duration
	lastDelay  time.Duration
}

func newPoliteness(fixedDelay time.Duration) *politeness {
	return &politeness{fixedDelay: fixedDelay}
}

// loadRobots fetches and parses domain's robots.txt for userAgent. A missing
// or unparsable robots.txt leaves the group nil, meaning "allow everything" —
// the same default crawler/crawlingrules.go's GetRobotsTxtGroup falls back to.
func (p *politeness) loadRobots(fetch *fetcher.Fetcher, userAgent string, domain *url.URL) {
	target := domain.ResolveReference(&url.URL{Path: robotsTxtPath})
	result, err := fetch.Fetch(context.Background(), target.String())
	if err != nil || result.StatusCode == 404 {
		return
	}
	data, err := robotstxt.FromBytes(result.Body)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.group = data.FindGroup(userAgent)
	p.mu.Unlock()
}

// allowed reports whether requestURI is permitted by the loaded robots.txt
// group, or true if none was loaded.
func (p *politeness) allowed(requestURI string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.group == nil {
		return true
	}
	return p.group.Test(requestURI)
}

// delay returns how long to wait before the next request: the largest of
// robots.txt's declared crawl-delay, a random value around fixedDelay, and
// lastDelay (spec §4.5.2).
func (p *politeness) delay() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var robotsDelay time.Duration
	if p.group != nil {
		robotsDelay = p.group.CrawlDelay
	}
	base := randDelay(p.fixedDelay)
	if robotsDelay > base {
		base = robotsDelay
	}
	if p.lastDelay > base {
		base = p.lastDelay
	}
	return base
}

// updateLastDelay records responseTime, squared, as the new lastDelay floor
// (teacher's CrawlingRules.UpdateLastDelay: a slow server gets backed off
// from harder on the next request).
func (p *politeness) updateLastDelay(responseTime time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastDelay = time.Duration(math.Pow(responseTime.Seconds(), 2)) * time.Second
}

// randDelay returns a random duration between 0.5x and 1.5x fixed.
func randDelay(fixed time.Duration) time.Duration {
	if fixed <= 0 {
		return 0
	}
	ms := float64(fixed.Milliseconds())
	lo, hi := ms*0.5, ms*1.5
	return time.Duration(lo+rand.Float64()*(hi-lo)) * time.Millisecond
}
