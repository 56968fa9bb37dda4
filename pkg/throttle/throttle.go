package throttle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"crawl-scheduler/pkg/parse"
	"crawl-scheduler/pkg/utils"
)

// originEntry tracks a single origin's semaphore and its usage state.
type originEntry struct {
	sem         *semaphore.Weighted
	refs        int64     // held + waiting permits; guards eviction
	admitted    int64     // fully admitted (counted) requests
	lastStart   time.Time // start time of the most recent admitted request
	lastRelease time.Time // updated on every Release; zero if never released
}

// Throttle enforces the admission rule for outbound requests: a global
// concurrency ceiling, a per-origin concurrency ceiling, and a minimum
// spacing between consecutive request starts to the same origin. A single
// Throttle should be shared across all components issuing requests so the
// limits are enforced globally.
type Throttle struct {
	globalSem      *semaphore.Weighted
	globalActive   atomic.Int64
	perOriginLimit int64
	minSpacing     time.Duration

	mu      sync.Mutex
	entries map[parse.Origin]*originEntry
	log     *logrus.Entry
}

// Ticket represents one granted admission. Release must be called exactly once
// on every exit path; a second Release is a no-op logged as an error.
type Ticket struct {
	throttle *Throttle
	origin   parse.Origin
	released atomic.Bool
}

// Stats is a read-only snapshot of throttle occupancy.
type Stats struct {
	GlobalActive    int64
	PerOriginActive map[string]int64
}

// New creates a Throttle. Non-positive concurrency limits are rejected here:
// a per-origin limit of 0 would make every admission block forever, so it is
// a configuration error rather than a runtime hang.
func New(globalLimit, perOriginLimit int, minSpacing time.Duration, log *logrus.Entry) (*Throttle, error) {
	if globalLimit <= 0 {
		return nil, fmt.Errorf("%w: global concurrency limit must be > 0, got %d",
			utils.ErrConfigValidation, globalLimit)
	}
	if perOriginLimit <= 0 {
		return nil, fmt.Errorf("%w: per-origin concurrency limit must be > 0, got %d",
			utils.ErrConfigValidation, perOriginLimit)
	}
	if minSpacing < 0 {
		return nil, fmt.Errorf("%w: minimum spacing cannot be negative, got %v",
			utils.ErrConfigValidation, minSpacing)
	}
	return &Throttle{
		globalSem:      semaphore.NewWeighted(int64(globalLimit)),
		perOriginLimit: int64(perOriginLimit),
		minSpacing:     minSpacing,
		entries:        make(map[parse.Origin]*originEntry),
		log:            log,
	}, nil
}

// Admit blocks until the origin may issue a request: global active < global
// limit, origin active < per-origin limit, and at least the effective spacing
// has elapsed since the origin's last admitted request start. crawlDelay, when
// longer than the configured minimum spacing, overrides it (robots.txt
// Crawl-delay). Nothing counts against either limit until all three conditions
// hold: a caller suspended on its origin's spacing window holds no slots, so
// other origins' admissions proceed. On success the counters are already
// updated and the request start time recorded; the caller must Release the
// returned ticket on every exit path.
func (t *Throttle) Admit(ctx context.Context, origin parse.Origin, crawlDelay time.Duration) (*Ticket, error) {
	t.mu.Lock()
	entry, exists := t.entries[origin]
	if !exists {
		entry = &originEntry{sem: semaphore.NewWeighted(t.perOriginLimit)}
		t.entries[origin] = entry
		t.log.WithFields(logrus.Fields{"origin": origin.String(), "limit": t.perOriginLimit}).Debug("Created new origin throttle entry")
	}
	entry.refs++
	t.mu.Unlock()

	effective := t.minSpacing
	if crawlDelay > effective {
		effective = crawlDelay
	}

	for {
		if err := t.globalSem.Acquire(ctx, 1); err != nil {
			t.abandon(entry)
			return nil, fmt.Errorf("%w: acquiring global slot: %w", utils.ErrThrottleAdmission, err)
		}

		if err := entry.sem.Acquire(ctx, 1); err != nil {
			t.globalSem.Release(1)
			t.abandon(entry)
			return nil, fmt.Errorf("%w: acquiring origin slot: %w", utils.ErrThrottleAdmission, err)
		}

		// Minimum spacing. The check and the lastStart update share one
		// critical section so two requests can never be admitted inside the
		// spacing window.
		t.mu.Lock()
		now := time.Now()
		var wait time.Duration
		if !entry.lastStart.IsZero() && effective > 0 {
			wait = effective - now.Sub(entry.lastStart)
		}
		if wait <= 0 {
			entry.lastStart = now
			entry.admitted++
			t.mu.Unlock()
			t.globalActive.Add(1)
			return &Ticket{throttle: t, origin: origin}, nil
		}
		t.mu.Unlock()

		// Both slots go back before the sleep; they are reacquired once the
		// window has elapsed
		entry.sem.Release(1)
		t.globalSem.Release(1)

		t.log.WithFields(logrus.Fields{"origin": origin.String(), "sleep": wait, "required_spacing": effective}).Debug("Spacing delay before admission")
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			t.abandon(entry)
			return nil, fmt.Errorf("%w: waiting for spacing: %w", utils.ErrThrottleAdmission, ctx.Err())
		}
	}
}

// abandon rolls back the refs increment for an admission that failed.
func (t *Throttle) abandon(entry *originEntry) {
	t.mu.Lock()
	entry.refs--
	t.mu.Unlock()
}

// Release returns the ticket's global and per-origin slots. Safe to call from
// deferred cleanup on every exit path; only the first call has effect.
func (tk *Ticket) Release() {
	if tk == nil {
		return
	}
	if !tk.released.CompareAndSwap(false, true) {
		tk.throttle.log.Errorf("throttle: duplicate Release for origin %s ignored", tk.origin)
		return
	}
	t := tk.throttle

	t.mu.Lock()
	entry, exists := t.entries[tk.origin]
	if !exists {
		t.mu.Unlock()
		t.log.Errorf("throttle: Release called for unknown origin: %s", tk.origin)
		return
	}
	entry.refs--
	entry.admitted--
	entry.lastRelease = time.Now()
	t.mu.Unlock()

	entry.sem.Release(1)
	t.globalSem.Release(1)
	t.globalActive.Add(-1)
}

// Stats returns a snapshot of current occupancy. Origins with no admitted
// requests are omitted.
func (t *Throttle) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	perOrigin := make(map[string]int64)
	for origin, entry := range t.entries {
		if entry.admitted > 0 {
			perOrigin[origin.String()] = entry.admitted
		}
	}
	return Stats{
		GlobalActive:    t.globalActive.Load(),
		PerOriginActive: perOrigin,
	}
}

// RunEviction periodically removes idle origin entries. Should be run in a goroutine.
func (t *Throttle) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.log.Info("Throttle eviction goroutine started.")

	for {
		select {
		case <-ticker.C:
			t.evictIdle(interval)
		case <-ctx.Done():
			t.log.Infof("Stopping throttle eviction: %v", ctx.Err())
			return
		}
	}
}

// evictIdle removes entries that have been idle longer than maxIdle.
func (t *Throttle) evictIdle(maxIdle time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	evicted := 0
	for origin, entry := range t.entries {
		if entry.refs == 0 && !entry.lastRelease.IsZero() && now.Sub(entry.lastRelease) >= maxIdle {
			delete(t.entries, origin)
			evicted++
		}
	}
	if evicted > 0 {
		t.log.Debugf("Evicted %d idle origin entries, %d remain", evicted, len(t.entries))
	}
}

// Len returns the current number of tracked origins.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
