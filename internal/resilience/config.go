package resilience

import (
	"time"

	"github.com/sells-group/competitor-intel/internal/config"
)

// RetryFromConfig builds the provider retry policy from the retry section.
// Non-positive values keep the defaults; a negative jitter disables jitter.
func RetryFromConfig(c config.RetryConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}
	if c.Multiplier > 0 {
		cfg.Multiplier = c.Multiplier
	}
	switch {
	case c.JitterFraction < 0:
		cfg.JitterFraction = 0
	case c.JitterFraction > 0:
		cfg.JitterFraction = c.JitterFraction
	}
	return cfg
}

// AttemptTimeout is the deadline applied to each provider attempt, zero when
// unset.
func AttemptTimeout(c config.RetryConfig) time.Duration {
	if c.RequestTimeoutSecs <= 0 {
		return 0
	}
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// CircuitFromConfig builds a named breaker config from the circuit section.
func CircuitFromConfig(name string, c config.CircuitConfig) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	cfg.Name = name
	if c.FailureThreshold > 0 {
		cfg.FailureThreshold = c.FailureThreshold
	}
	if c.ResetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(c.ResetTimeoutSecs) * time.Second
	}
	return cfg
}
