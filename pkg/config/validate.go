package config

import (
	"fmt"
	"time"

	"crawl-scheduler/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
//
// Concurrency limits are fatal when non-positive: a per-origin limit of 0
// would make admission impossible and deadlock every run, so it is rejected
// here rather than surfacing as a hang at runtime.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// GlobalConcurrency
	if c.GlobalConcurrency <= 0 {
		return nil, fmt.Errorf("%w: global_concurrency must be > 0, got %d",
			utils.ErrConfigValidation, c.GlobalConcurrency)
	}

	// PerOriginConcurrency
	if c.PerOriginConcurrency <= 0 {
		return nil, fmt.Errorf("%w: per_origin_concurrency must be > 0, got %d",
			utils.ErrConfigValidation, c.PerOriginConcurrency)
	}

	// MinSpacing
	if c.MinSpacing < 0 {
		return nil, fmt.Errorf("%w: min_spacing cannot be negative, got %v",
			utils.ErrConfigValidation, c.MinSpacing)
	}

	// BackoffMultiplier
	if c.BackoffMultiplier != 0 && c.BackoffMultiplier < 1 {
		return nil, fmt.Errorf("%w: backoff_multiplier must be >= 1, got %g",
			utils.ErrConfigValidation, c.BackoffMultiplier)
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = 2
	}

	// UserAgent
	if c.UserAgent == "" {
		warnings = append(warnings, "user_agent is empty, defaulting to 'crawl-scheduler/1.0'")
		c.UserAgent = "crawl-scheduler/1.0"
	}

	// MaxRetries: nil means unset and gets the default; an explicit 0 disables
	// retrying and is kept
	if c.MaxRetries == nil {
		defaultRetries := 3
		c.MaxRetries = &defaultRetries
	} else if *c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		*c.MaxRetries = 0
	}

	// Backoff delays (only if retries enabled)
	if *c.MaxRetries > 0 {
		if c.BackoffBase <= 0 {
			c.BackoffBase = 2 * time.Second
		}
		if c.MaxBackoff <= 0 {
			c.MaxBackoff = 30 * time.Second
		}
	}

	// BackoffBase > MaxBackoff check
	if c.BackoffBase > c.MaxBackoff && c.MaxBackoff > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"backoff_base (%v) > max_backoff (%v), using max_backoff for base",
			c.BackoffBase, c.MaxBackoff))
		c.BackoffBase = c.MaxBackoff
	}

	// RobotsTimeout
	if c.RobotsTimeout <= 0 {
		c.RobotsTimeout = 5 * time.Second
	}

	// ScheduleTimeout
	if c.ScheduleTimeout < 0 {
		warnings = append(warnings, "schedule_timeout cannot be negative, disabling timeout")
		c.ScheduleTimeout = 0
	}

	// StateDir
	if c.StateDir == "" {
		c.StateDir = "./scheduler_state"
	}

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
