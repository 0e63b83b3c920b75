package resilience

import (
	"math/rand/v2"
	"time"

	"github.com/vetcore/platform/internal/shared/config"
)

// Config tunes retries and the per-operation circuit breaker.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	// RetryJitter shaves up to this fraction off each wait. Zero disables it.
	RetryJitter float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig suits calls to notification providers and the clinic API.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 200 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,
		RetryJitter:         0.2,

		BreakerEnabled:          true,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.6,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 1,
	}
}

// FromSettings builds a Config from the RETRY_* and BREAKER_* environment
// settings. Unset values keep their defaults.
func FromSettings(s config.ResilienceConfig) Config {
	cfg := DefaultConfig()
	if s.MaxAttempts > 0 {
		cfg.RetryMaxAttempts = s.MaxAttempts
	}
	if s.InitialBackoff > 0 {
		cfg.RetryInitialBackoff = s.InitialBackoff
	}
	if s.MaxBackoff > 0 {
		cfg.RetryMaxBackoff = s.MaxBackoff
	}
	cfg.BreakerEnabled = s.BreakerEnabled
	if s.FailureRatio > 0 {
		cfg.BreakerFailureRatio = s.FailureRatio
	}
	if s.OpenTimeout > 0 {
		cfg.BreakerOpenTimeout = s.OpenTimeout
	}
	return cfg
}

func (c Config) normalize() Config {
	def := DefaultConfig()

	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if c.RetryInitialBackoff <= 0 {
		c.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if c.RetryMaxBackoff <= 0 {
		c.RetryMaxBackoff = def.RetryMaxBackoff
	}
	c.RetryMaxBackoff = max(c.RetryMaxBackoff, c.RetryInitialBackoff)
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = def.RetryMultiplier
	}
	c.RetryJitter = min(max(c.RetryJitter, 0), 1)

	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = def.BreakerMinRequests
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if c.BreakerHalfOpenMaxCalls == 0 {
		c.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}
	return c
}

// wait returns how long to pause before the next attempt. A server hint
// wins over the computed delay but is still capped at RetryMaxBackoff.
func (c Config) wait(delay, hint time.Duration, rnd func() float64) time.Duration {
	if hint > 0 {
		return min(hint, c.RetryMaxBackoff)
	}
	d := min(delay, c.RetryMaxBackoff)
	if c.RetryJitter > 0 {
		d -= time.Duration(float64(d) * c.RetryJitter * rnd())
	}
	return d
}

func (c Config) next(delay time.Duration) time.Duration {
	return min(time.Duration(float64(delay)*c.RetryMultiplier), c.RetryMaxBackoff)
}

func defaultRand() float64 { return rand.Float64() }
