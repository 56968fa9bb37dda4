package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"crawl-scheduler/pkg/config"
	"crawl-scheduler/pkg/models"
	"crawl-scheduler/pkg/parse"
	"crawl-scheduler/pkg/policy"
	"crawl-scheduler/pkg/retry"
	"crawl-scheduler/pkg/throttle"
	"crawl-scheduler/pkg/utils"
)

// PageFetcher is the opaque page-fetch collaborator: given a URL it returns
// the rendered document and final status, or a classified error. Implemented
// by fetch.PageClient in production; tests supply fakes.
type PageFetcher interface {
	PerformFetch(ctx context.Context, url string) (*models.FetchResult, error)
}

// Scheduler coordinates the policy cache, throttle, and retry coordinator to
// process a batch of URLs, producing one terminal outcome per input URL.
type Scheduler struct {
	policies    *policy.Cache
	throttle    *throttle.Throttle
	fetcher     PageFetcher
	retryPolicy retry.Policy
	log         *logrus.Entry
}

// New builds a Scheduler from validated configuration and its collaborators.
// Configuration errors (non-positive concurrency limits) surface here, before
// any URL is processed.
func New(cfg *config.AppConfig, policies *policy.Cache, fetcher PageFetcher, log *logrus.Entry) (*Scheduler, error) {
	th, err := throttle.New(cfg.GlobalConcurrency, cfg.PerOriginConcurrency, cfg.MinSpacing, log)
	if err != nil {
		return nil, fmt.Errorf("building throttle: %w", err)
	}
	maxRetries := 0
	if cfg.MaxRetries != nil {
		maxRetries = *cfg.MaxRetries
	}
	return &Scheduler{
		policies: policies,
		throttle: th,
		fetcher:  fetcher,
		retryPolicy: retry.Policy{
			MaxRetries: maxRetries,
			BaseDelay:  cfg.BackoffBase,
			Multiplier: cfg.BackoffMultiplier,
			MaxDelay:   cfg.MaxBackoff,
		},
		log: log,
	}, nil
}

// ScheduleAll processes a batch of URLs and returns their terminal outcomes
// in input order. All URLs are dispatched concurrently; the throttle gates how
// many fetches actually execute at once, globally and per origin. One URL's
// failure never aborts the batch. Cancelling ctx stops new admissions; work
// already admitted runs to completion and its throttle slot is released.
func (s *Scheduler) ScheduleAll(ctx context.Context, urls []string) []models.Outcome {
	outcomes := make([]models.Outcome, len(urls))

	var wg sync.WaitGroup
	for i, rawURL := range urls {
		wg.Add(1)
		go func(idx int, rawURL string) {
			defer wg.Done()
			// Results are indexed at dispatch time so output order matches
			// input order regardless of completion order
			outcomes[idx] = s.processURL(ctx, rawURL)
		}(i, rawURL)
	}
	wg.Wait()

	return outcomes
}

// processURL runs one URL through policy check, throttled admission, and
// retried fetch, producing its terminal outcome.
func (s *Scheduler) processURL(ctx context.Context, rawURL string) models.Outcome {
	urlLog := s.log.WithField("url", rawURL)

	origin, err := parse.DeriveOrigin(rawURL)
	if err != nil {
		urlLog.Warnf("Rejecting URL: %v", err)
		return failureOutcome(rawURL, 0, err)
	}

	// Policy check first: a denied URL consumes no throttle slot and triggers
	// no fetch
	verdict := s.policies.CheckURL(ctx, rawURL)
	if !verdict.Allowed {
		urlLog.WithField("origin", origin.String()).Info("URL disallowed by origin policy")
		return models.Outcome{
			URL:      rawURL,
			Status:   models.OutcomeStatusDenied,
			Reason:   verdict.Reason,
			Category: utils.CategorizeError(utils.ErrPolicyDenied),
		}
	}

	crawlDelay := s.policies.CrawlDelayFor(ctx, origin)

	ticket, err := s.throttle.Admit(ctx, origin, crawlDelay)
	if err != nil {
		urlLog.Warnf("Throttle admission failed: %v", err)
		return failureOutcome(rawURL, 0, err)
	}
	defer ticket.Release()

	result, attempts, err := retry.Do(ctx, s.retryPolicy, urlLog, func(ctx context.Context) (*models.FetchResult, error) {
		return s.fetcher.PerformFetch(ctx, rawURL)
	})
	if err != nil {
		return failureOutcome(rawURL, attempts, err)
	}

	urlLog.WithFields(logrus.Fields{"attempts": attempts, "status_code": result.StatusCode}).Debug("URL fetched")
	return models.Outcome{
		URL:      rawURL,
		Status:   models.OutcomeStatusSuccess,
		Result:   result,
		Attempts: attempts,
	}
}

func failureOutcome(rawURL string, attempts int, err error) models.Outcome {
	return models.Outcome{
		URL:      rawURL,
		Status:   models.OutcomeStatusFailure,
		Attempts: attempts,
		Err:      err,
		Category: utils.CategorizeError(err),
	}
}

// Stats returns a read-only snapshot of current scheduler state.
func (s *Scheduler) Stats() models.SchedulerStats {
	throttleStats := s.throttle.Stats()
	return models.SchedulerStats{
		GlobalActive:      throttleStats.GlobalActive,
		PerOriginActive:   throttleStats.PerOriginActive,
		CachedOriginCount: s.policies.Len(),
	}
}

// ClearPolicyCache empties the policy cache; the next URL for each origin
// refetches robots.txt.
func (s *Scheduler) ClearPolicyCache() {
	s.policies.ClearCache()
}

// RunEviction starts the throttle's idle-entry eviction loop; intended for
// long-running processes. Blocks until ctx is cancelled.
func (s *Scheduler) RunEviction(ctx context.Context, interval time.Duration) {
	s.throttle.RunEviction(ctx, interval)
}
