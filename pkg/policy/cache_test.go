package policy

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"crawl-scheduler/pkg/models"
	"crawl-scheduler/pkg/parse"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// fakeRobotsFetcher returns canned responses per robots URL and counts fetches.
type fakeRobotsFetcher struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     atomic.Int32
	delay     time.Duration // Optional latency to widen concurrency windows
}

type fakeResponse struct {
	status int
	body   []byte
	err    error
}

func (f *fakeRobotsFetcher) Fetch(ctx context.Context, robotsURL string) (int, []byte, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		}
	}
	f.mu.Lock()
	resp, ok := f.responses[robotsURL]
	f.mu.Unlock()
	if !ok {
		return 404, nil, nil
	}
	return resp.status, resp.body, resp.err
}

const denyPrivateRobots = `User-agent: *
Disallow: /private/

User-agent: test-agent
Disallow: /admin/
Crawl-delay: 2
`

func newFakeCache(t *testing.T, responses map[string]fakeResponse) (*Cache, *fakeRobotsFetcher) {
	t.Helper()
	fetcher := &fakeRobotsFetcher{responses: responses}
	cache := New(fetcher, "test-agent", time.Second, testLogger())
	return cache, fetcher
}

func TestCache_DisallowedPathDenied(t *testing.T) {
	cache, _ := newFakeCache(t, map[string]fakeResponse{
		"https://example.com/robots.txt": {status: 200, body: []byte(denyPrivateRobots)},
	})
	ctx := context.Background()

	if cache.IsAllowed(ctx, "https://example.com/admin/panel") {
		t.Error("expected /admin/ to be disallowed for test-agent")
	}
	if !cache.IsAllowed(ctx, "https://example.com/docs/intro") {
		t.Error("expected /docs/ to be allowed")
	}
}

func TestCache_AgentSpecificGroupWins(t *testing.T) {
	cache, _ := newFakeCache(t, map[string]fakeResponse{
		"https://example.com/robots.txt": {status: 200, body: []byte(denyPrivateRobots)},
	})
	ctx := context.Background()

	// /private/ is disallowed only for the wildcard group; test-agent has its
	// own group so the wildcard rules do not apply to it
	if !cache.IsAllowed(ctx, "https://example.com/private/data") {
		t.Error("expected test-agent's own group to override the wildcard group")
	}
}

func TestCache_404AllowsAll(t *testing.T) {
	cache, _ := newFakeCache(t, map[string]fakeResponse{
		"https://example.com/robots.txt": {status: 404},
	})
	if !cache.IsAllowed(context.Background(), "https://example.com/anything") {
		t.Error("missing robots.txt should allow all paths")
	}
}

func TestCache_5xxAllowsAll(t *testing.T) {
	cache, _ := newFakeCache(t, map[string]fakeResponse{
		"https://example.com/robots.txt": {status: 503},
	})
	if !cache.IsAllowed(context.Background(), "https://example.com/anything") {
		t.Error("server error fetching robots.txt should degrade to allow-all")
	}
}

func TestCache_NetworkErrorAllowsAll(t *testing.T) {
	cache, _ := newFakeCache(t, map[string]fakeResponse{
		"https://example.com/robots.txt": {err: errors.New("dial tcp: connection refused")},
	})
	if !cache.IsAllowed(context.Background(), "https://example.com/anything") {
		t.Error("network failure fetching robots.txt should degrade to allow-all")
	}
}

func TestCache_FetchedOncePerOrigin(t *testing.T) {
	cache, fetcher := newFakeCache(t, map[string]fakeResponse{
		"https://example.com/robots.txt": {status: 200, body: []byte(denyPrivateRobots)},
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		cache.IsAllowed(ctx, "https://example.com/docs/page")
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", got)
	}
	if cache.Len() != 1 {
		t.Errorf("cache has %d origins, want 1", cache.Len())
	}
}

func TestCache_FailedFetchCachedNotRetried(t *testing.T) {
	cache, fetcher := newFakeCache(t, map[string]fakeResponse{
		"https://example.com/robots.txt": {err: errors.New("i/o timeout")},
	})
	ctx := context.Background()

	cache.IsAllowed(ctx, "https://example.com/a")
	cache.IsAllowed(ctx, "https://example.com/b")
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("failed robots fetch repeated %d times, want degraded result cached after 1", got)
	}
}

func TestCache_ConcurrentMissesCoalesced(t *testing.T) {
	fetcher := &fakeRobotsFetcher{
		responses: map[string]fakeResponse{
			"https://example.com/robots.txt": {status: 200, body: []byte(denyPrivateRobots)},
		},
		delay: 20 * time.Millisecond,
	}
	cache := New(fetcher, "test-agent", time.Second, testLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.PolicyFor(ctx, parse.Origin("https://example.com"))
		}()
	}
	wg.Wait()

	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("concurrent misses issued %d fetches, want 1", got)
	}
}

func TestCache_IndependentOrigins(t *testing.T) {
	cache, fetcher := newFakeCache(t, map[string]fakeResponse{
		"https://a.example.com/robots.txt": {status: 200, body: []byte("User-agent: *\nDisallow: /\n")},
		"https://b.example.com/robots.txt": {status: 404},
	})
	ctx := context.Background()

	if cache.IsAllowed(ctx, "https://a.example.com/page") {
		t.Error("a.example.com disallows everything")
	}
	if !cache.IsAllowed(ctx, "https://b.example.com/page") {
		t.Error("b.example.com has no robots.txt, should allow")
	}
	if got := fetcher.calls.Load(); got != 2 {
		t.Errorf("fetch count = %d, want 2 (one per origin)", got)
	}
	if cache.Len() != 2 {
		t.Errorf("cache has %d origins, want 2", cache.Len())
	}
}

func TestCache_MalformedRobotsAllowsAll(t *testing.T) {
	// robotstxt.FromBytes is extremely lenient, but binary garbage with invalid
	// UTF-8 still produces a policy; treat whatever parses as authoritative and
	// whatever doesn't as allow-all. Either way the check must not error.
	cache, _ := newFakeCache(t, map[string]fakeResponse{
		"https://example.com/robots.txt": {status: 200, body: []byte{0xff, 0xfe, 0x00, 0x01}},
	})
	if !cache.IsAllowed(context.Background(), "https://example.com/page") {
		t.Error("unparseable robots.txt should not deny anything")
	}
}

func TestCache_CrawlDelayExtracted(t *testing.T) {
	cache, _ := newFakeCache(t, map[string]fakeResponse{
		"https://example.com/robots.txt": {status: 200, body: []byte(denyPrivateRobots)},
	})
	delay := cache.CrawlDelayFor(context.Background(), parse.Origin("https://example.com"))
	if delay != 2*time.Second {
		t.Errorf("CrawlDelayFor = %v, want 2s", delay)
	}
}

func TestCache_NoCrawlDelayZero(t *testing.T) {
	cache, _ := newFakeCache(t, map[string]fakeResponse{
		"https://example.com/robots.txt": {status: 404},
	})
	delay := cache.CrawlDelayFor(context.Background(), parse.Origin("https://example.com"))
	if delay != 0 {
		t.Errorf("CrawlDelayFor = %v, want 0 when robots.txt is absent", delay)
	}
}

func TestCache_CheckURLVerdict(t *testing.T) {
	cache, _ := newFakeCache(t, map[string]fakeResponse{
		"https://example.com/robots.txt": {status: 200, body: []byte(denyPrivateRobots)},
	})
	ctx := context.Background()

	allowed := cache.CheckURL(ctx, "https://example.com/docs")
	if !allowed.Allowed || allowed.Reason != "" {
		t.Errorf("allowed verdict = %+v, want Allowed with empty reason", allowed)
	}

	denied := cache.CheckURL(ctx, "https://example.com/admin/panel")
	if denied.Allowed {
		t.Fatalf("denied verdict = %+v, want not allowed", denied)
	}
	if denied.Reason != models.DeniedReason {
		t.Errorf("denied reason = %q, want %q", denied.Reason, models.DeniedReason)
	}
}

func TestCache_ClearCacheForcesRefetch(t *testing.T) {
	cache, fetcher := newFakeCache(t, map[string]fakeResponse{
		"https://example.com/robots.txt": {status: 200, body: []byte(denyPrivateRobots)},
	})
	ctx := context.Background()

	cache.IsAllowed(ctx, "https://example.com/docs")
	cache.ClearCache()
	if cache.Len() != 0 {
		t.Errorf("cache not empty after ClearCache: %d entries", cache.Len())
	}
	cache.IsAllowed(ctx, "https://example.com/docs")
	if got := fetcher.calls.Load(); got != 2 {
		t.Errorf("fetch count = %d after ClearCache, want 2", got)
	}
}

func TestOriginPolicy_NilAllowsAll(t *testing.T) {
	var p *OriginPolicy
	if !p.Allows("/anything", "any-agent") {
		t.Error("nil policy should allow all")
	}
	empty := &OriginPolicy{Origin: "https://example.com"}
	if !empty.Allows("/anything", "any-agent") {
		t.Error("policy without rules should allow all")
	}
}
