package policy

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"crawl-scheduler/pkg/models"
	"crawl-scheduler/pkg/parse"
)

// RobotsFetcher retrieves raw robots.txt documents. Implemented by
// fetch.RobotsClient in production; tests supply fakes.
type RobotsFetcher interface {
	Fetch(ctx context.Context, robotsURL string) (status int, body []byte, err error)
}

// OriginPolicy holds the parsed crawl permissions for one origin.
// A nil rules pointer means allow-all (missing, unreachable, or unparseable
// robots.txt). Policies are immutable: a refetch replaces the whole value,
// it is never patched in place.
type OriginPolicy struct {
	Origin     parse.Origin
	rules      *robotstxt.RobotsData
	CrawlDelay time.Duration // Crawl-delay for the configured agent; 0 if unspecified
}

// Allows reports whether the given request path is permitted for the agent
// token. Allow-all policies permit everything.
func (p *OriginPolicy) Allows(path, agent string) bool {
	if p == nil || p.rules == nil {
		return true
	}
	return p.rules.TestAgent(path, agent)
}

// Verdict is the result of checking one URL against its origin policy.
type Verdict struct {
	Allowed bool
	Reason  string // models.DeniedReason when denied, empty otherwise
}

// Cache fetches, parses, and caches per-origin crawl permissions.
// It is explicitly constructed with its own lifecycle (New, ClearCache,
// discard) so independent scheduling runs can coexist; there is no package
// level shared instance.
type Cache struct {
	fetcher RobotsFetcher
	agent   string        // Agent token used for rule matching and crawl-delay lookup
	timeout time.Duration // Per-fetch timeout for robots.txt requests

	mu       sync.RWMutex
	policies map[parse.Origin]*OriginPolicy
	flight   singleflight.Group // Coalesces concurrent misses for the same origin
	log      *logrus.Entry
}

// New creates a policy cache. fetchTimeout bounds each robots.txt fetch;
// values <= 0 fall back to 5s.
func New(fetcher RobotsFetcher, agent string, fetchTimeout time.Duration, log *logrus.Entry) *Cache {
	if fetchTimeout <= 0 {
		fetchTimeout = 5 * time.Second
	}
	return &Cache{
		fetcher:  fetcher,
		agent:    agent,
		timeout:  fetchTimeout,
		policies: make(map[parse.Origin]*OriginPolicy),
		log:      log,
	}
}

// PolicyFor returns the cached policy for the origin, fetching and parsing
// robots.txt on first use. Concurrent misses for the same origin issue at most
// one underlying fetch. The returned policy is never nil.
func (c *Cache) PolicyFor(ctx context.Context, origin parse.Origin) *OriginPolicy {
	c.mu.RLock()
	cached, found := c.policies[origin]
	c.mu.RUnlock()
	if found {
		return cached
	}

	// Coalesce concurrent fetches of the same origin's policy. The winner
	// populates the cache; everyone else blocks on its result.
	result, _, _ := c.flight.Do(string(origin), func() (any, error) {
		// Re-check under the flight: a previous caller may have populated the
		// cache between our miss and this fetch being scheduled.
		c.mu.RLock()
		existing, ok := c.policies[origin]
		c.mu.RUnlock()
		if ok {
			return existing, nil
		}

		policy := c.fetchPolicy(ctx, origin)
		c.mu.Lock()
		c.policies[origin] = policy
		c.mu.Unlock()
		return policy, nil
	})
	return result.(*OriginPolicy)
}

// fetchPolicy performs the robots.txt fetch and parse for one origin.
// Failures never propagate: unreachable or malformed robots endpoints degrade
// to allow-all so scraping proceeds rather than stalling.
func (c *Cache) fetchPolicy(ctx context.Context, origin parse.Origin) *OriginPolicy {
	robotsURL := origin.RobotsURL()
	robotsLog := c.log.WithFields(logrus.Fields{"origin": origin.String(), "robots_url": robotsURL})
	robotsLog.Info("Fetching robots.txt...") // Log only on cache miss

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	allowAll := &OriginPolicy{Origin: origin}

	status, body, err := c.fetcher.Fetch(fetchCtx, robotsURL)
	if err != nil {
		// Network error or timeout: conservative allow, crawl must not stall
		// on an unreachable robots endpoint
		robotsLog.Warnf("Fetching robots.txt failed, allowing all paths: %v", err)
		return allowAll
	}

	switch {
	case status >= 200 && status < 300:
		data, parseErr := robotstxt.FromBytes(body)
		if parseErr != nil {
			robotsLog.Warnf("Error parsing robots.txt content, allowing all paths: %v", parseErr)
			return allowAll
		}
		policy := &OriginPolicy{Origin: origin, rules: data}
		if group := data.FindGroup(c.agent); group != nil {
			policy.CrawlDelay = group.CrawlDelay
		}
		robotsLog.WithField("crawl_delay", policy.CrawlDelay).Info("Successfully fetched and parsed robots.txt")
		return policy

	case status >= 400 && status < 500:
		// Missing robots.txt means no restrictions
		robotsLog.WithField("status", status).Debug("robots.txt not available (4xx), allowing all paths")
		return allowAll

	default:
		// 5xx and anything unexpected: conservative allow, logged
		robotsLog.WithField("status", status).Warn("robots.txt fetch returned server error, allowing all paths")
		return allowAll
	}
}

// IsAllowed reports whether the URL's path is permitted for the cache's agent
// token under the origin's policy. Malformed URLs are permitted here; the
// scheduler rejects them earlier with a proper error.
func (c *Cache) IsAllowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return true
	}
	origin, err := parse.OriginOf(parsed)
	if err != nil {
		return true
	}
	policy := c.PolicyFor(ctx, origin)
	return policy.Allows(parsed.RequestURI(), c.agent)
}

// CheckURL wraps IsAllowed into an allowed/reason verdict.
func (c *Cache) CheckURL(ctx context.Context, rawURL string) Verdict {
	if c.IsAllowed(ctx, rawURL) {
		return Verdict{Allowed: true}
	}
	return Verdict{Allowed: false, Reason: models.DeniedReason}
}

// CrawlDelayFor returns the cached crawl-delay for an origin (0 if none).
// Fetches the policy on first use.
func (c *Cache) CrawlDelayFor(ctx context.Context, origin parse.Origin) time.Duration {
	return c.PolicyFor(ctx, origin).CrawlDelay
}

// ClearCache empties the cache. Used between runs and for test isolation.
func (c *Cache) ClearCache() {
	c.mu.Lock()
	c.policies = make(map[parse.Origin]*OriginPolicy)
	c.mu.Unlock()
}

// Len returns the number of origins with a cached policy.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.policies)
}
