package config

import (
	"crypto/tls"
	"time"
)

const (
	ModeCI   = "CI"
	ModeUser = "user"
)

// Pipeline defaults.
const (
	DefaultPipelineTimeout = 300 * time.Second
	DefaultFrameTimeout    = 300 * time.Second
	DefaultFileTimeoutMin  = 10 * time.Second
	DefaultStrategy        = "sequential"
	DefaultParallelLimit   = 3
)

// Audit service defaults.
const (
	DefaultAuditBatchTimeout   = 30 * time.Second
	DefaultAuditMaxFailures    = 3
	DefaultAuditMaxEdges       = 100
	DefaultAuditMaxDeadSymbols = 50
	DefaultAuditRateLimit      = 20.0
	DefaultAuditBurst          = 5
	DefaultAuditHealthPath     = "/health"
)

const (
	DefaultHomeFolder       = ".warden"
	DefaultCacheMaxEntries  = 10000
	DefaultTriageSafeMaxLen = 2048
)

// BaseHTTPConfig holds common HTTP client configuration settings.
type BaseHTTPConfig struct {
	RetryCount       int           // Number of retries for failed requests
	RetryWaitTime    time.Duration // Wait time between retries
	RetryMaxWaitTime time.Duration // Maximum wait time for retries
	Timeout          time.Duration // Timeout for requests
	TLSClientConfig  *tls.Config   // TLS configuration
	Proxy            string        // Proxy address
}

// RestyHTTPClientConfig holds additional configuration settings for the Resty HTTP client.
type RestyHTTPClientConfig struct {
	BaseHTTPConfig
	Debug bool
}

// DefaultHTTPConfig returns a base configuration for HTTP clients with default values.
// The audit service sits behind a circuit breaker, so retries stay low.
func DefaultHTTPConfig() BaseHTTPConfig {
	return BaseHTTPConfig{
		RetryCount:       1,
		RetryWaitTime:    200 * time.Millisecond,
		RetryMaxWaitTime: 1 * time.Second,
		Timeout:          10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		Proxy: "",
	}
}

// DefaultRestyConfig returns a default configuration for the Resty HTTP client.
func DefaultRestyConfig() RestyHTTPClientConfig {
	return RestyHTTPClientConfig{
		BaseHTTPConfig: DefaultHTTPConfig(),
		Debug:          false,
	}
}
