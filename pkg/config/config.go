package config

import "time"

// AppConfig holds the global application configuration
type AppConfig struct {
	UserAgent            string           `yaml:"user_agent,omitempty"`
	GlobalConcurrency    int              `yaml:"global_concurrency"`
	PerOriginConcurrency int              `yaml:"per_origin_concurrency"`
	MinSpacing           time.Duration    `yaml:"min_spacing,omitempty"`
	MaxRetries           *int             `yaml:"max_retries,omitempty"` // Retries per URL after the first attempt (use pointer for tri-state: nil=default of 3, 0=no retries)
	BackoffBase          time.Duration    `yaml:"backoff_base,omitempty"`
	BackoffMultiplier    float64          `yaml:"backoff_multiplier,omitempty"`
	MaxBackoff           time.Duration    `yaml:"max_backoff,omitempty"`
	RobotsTimeout        time.Duration    `yaml:"robots_timeout,omitempty"`
	ScheduleTimeout      time.Duration    `yaml:"schedule_timeout,omitempty"` // Run-level timeout (0 = no timeout)
	StateDir             string           `yaml:"state_dir,omitempty"`        // Base directory for the outcome journal
	HTTPClientSettings   HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // Explicitly enable/disable HTTP/2 attempt (use pointer for tri-state: nil=default, true=force, false=disable)
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}
