package resilience

import "time"

// Config tunes retries and the per-upstream circuit breakers.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	// CapacityBackoffMultiplier stretches waits after rate limiting.
	CapacityBackoffMultiplier float64
	// MaxRetryAfter caps a server supplied Retry-After.
	MaxRetryAfter time.Duration

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:          3,
		RetryInitialBackoff:       100 * time.Millisecond,
		RetryMaxBackoff:           400 * time.Millisecond,
		RetryMultiplier:           2.0,
		CapacityBackoffMultiplier: 4.0,
		MaxRetryAfter:             10 * time.Second,

		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// normalize replaces unusable values with defaults. BreakerEnabled is taken
// as given.
func (c Config) normalize() Config {
	def := DefaultConfig()
	c.RetryMaxAttempts = positiveOr(c.RetryMaxAttempts, def.RetryMaxAttempts)
	c.RetryInitialBackoff = positiveOr(c.RetryInitialBackoff, def.RetryInitialBackoff)
	c.RetryMaxBackoff = max(positiveOr(c.RetryMaxBackoff, def.RetryMaxBackoff), c.RetryInitialBackoff)
	c.MaxRetryAfter = positiveOr(c.MaxRetryAfter, def.MaxRetryAfter)
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = def.RetryMultiplier
	}
	if c.CapacityBackoffMultiplier < 1 {
		c.CapacityBackoffMultiplier = def.CapacityBackoffMultiplier
	}

	c.BreakerMinRequests = positiveOr(c.BreakerMinRequests, def.BreakerMinRequests)
	c.BreakerOpenTimeout = positiveOr(c.BreakerOpenTimeout, def.BreakerOpenTimeout)
	c.BreakerHalfOpenMaxCalls = positiveOr(c.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls)
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	return c
}

func positiveOr[T int | uint32 | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}

// retryPlan yields the wait before each retry of one call.
type retryPlan struct {
	cfg  Config
	next time.Duration
}

func newRetryPlan(cfg Config) *retryPlan {
	return &retryPlan{cfg: cfg, next: cfg.RetryInitialBackoff}
}

// wait returns how long to sleep after a failure with class and advances the
// exponential base.
func (p *retryPlan) wait(class ErrorClassification) time.Duration {
	base := p.next
	limit := p.cfg.RetryMaxBackoff
	if class.Capacity {
		base = time.Duration(float64(base) * p.cfg.CapacityBackoffMultiplier)
		limit = time.Duration(float64(limit) * p.cfg.CapacityBackoffMultiplier)
	}
	d := min(base, limit)
	if class.RetryAfter > d {
		d = min(class.RetryAfter, p.cfg.MaxRetryAfter)
	}

	p.next = min(time.Duration(float64(p.next)*p.cfg.RetryMultiplier), p.cfg.RetryMaxBackoff)
	return d
}
