// Package backoff adapts the wait between provider calls to the failures the
// provider reports. It is not safe for concurrent use; rate.Limiter serializes
// access.
package backoff

import (
	"math/rand/v2"
	"time"

	cenkalti "github.com/cenkalti/backoff/v4"
)

// Waiting a full day is how the caller learns it must not retry on a quota
// failure. The quota clock holds the actual reset time.
const QuotaWait = 24 * time.Hour

const (
	minJitter = 0.8
	maxJitter = 1.2
)

type Config struct {
	// First failure waits BaseBackoff * Multiplier, before jitter.
	BaseBackoff time.Duration
	Multiplier  float64
	MaxBackoff  time.Duration

	// Bounds of the minimum spacing between two consecutive calls.
	IntervalFloor   time.Duration
	IntervalCeiling time.Duration

	// Spacing factor per failure (> 1) and per success (< 1).
	IntervalGrowth float64
	IntervalShrink float64
}

func DefaultConfig() Config {
	return Config{
		BaseBackoff:     time.Second,
		Multiplier:      1.8,
		MaxBackoff:      30 * time.Second,
		IntervalFloor:   500 * time.Millisecond,
		IntervalCeiling: 3 * time.Second,
		IntervalGrowth:  1.1,
		IntervalShrink:  0.95,
	}
}

type Controller struct {
	config Config

	consecutiveFailures int
	minInterval         time.Duration
	blockedUntil        time.Time

	// Start of the latest reserved call slot, possibly in the future.
	lastCall time.Time

	// Produces the undithered exponential sequence.
	sequence *cenkalti.ExponentialBackOff
	lastBase time.Duration

	// Returns a value in [0, 1).
	random func() float64
}

func NewController(config Config) *Controller {
	return newControllerWithRandom(config, rand.Float64)
}

func newControllerWithRandom(config Config, random func() float64) *Controller {
	if config.IntervalCeiling < config.IntervalFloor {
		config.IntervalCeiling = config.IntervalFloor
	}
	c := &Controller{
		config:      config,
		minInterval: config.IntervalFloor,
		random:      random,
	}
	c.sequence = &cenkalti.ExponentialBackOff{
		InitialInterval:     time.Duration(float64(config.BaseBackoff) * config.Multiplier),
		RandomizationFactor: 0,
		Multiplier:          config.Multiplier,
		MaxInterval:         config.MaxBackoff,
		MaxElapsedTime:      0,
		Stop:                cenkalti.Stop,
		Clock:               cenkalti.SystemClock,
	}
	c.sequence.Reset()
	return c
}

// TimeUntilAllowed returns how long a caller must still wait after a failure.
func (c *Controller) TimeUntilAllowed(now time.Time) time.Duration {
	if wait := c.blockedUntil.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// ObserveFailure records a failed call and returns the wait it imposes. Quota
// failures do not block the controller; the caller consults the quota clock.
func (c *Controller) ObserveFailure(now time.Time, isQuota bool) time.Duration {
	c.consecutiveFailures++
	if isQuota {
		return QuotaWait
	}

	base := c.sequence.NextBackOff()
	if base == cenkalti.Stop || base > c.config.MaxBackoff {
		base = c.config.MaxBackoff
	}
	c.lastBase = base

	jitter := minJitter + (maxJitter-minJitter)*c.random()
	wait := time.Duration(float64(base) * jitter)
	c.blockedUntil = now.Add(wait)

	c.minInterval = time.Duration(float64(c.minInterval) * c.config.IntervalGrowth)
	if c.minInterval > c.config.IntervalCeiling {
		c.minInterval = c.config.IntervalCeiling
	}
	return wait
}

func (c *Controller) ObserveSuccess(now time.Time) {
	c.consecutiveFailures = 0
	c.sequence.Reset()
	c.lastBase = 0

	c.minInterval = time.Duration(float64(c.minInterval) * c.config.IntervalShrink)
	if c.minInterval < c.config.IntervalFloor {
		c.minInterval = c.config.IntervalFloor
	}
}

// EnforceMinSpacing returns the extra wait needed so that at least
// minInterval passes between lastCall and the next call.
func (c *Controller) EnforceMinSpacing(now, lastCall time.Time) time.Duration {
	if lastCall.IsZero() {
		return 0
	}
	if wait := lastCall.Add(c.minInterval).Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Reserve returns the wait before the next call may start and books that
// slot, so concurrent callers are spaced against each other.
func (c *Controller) Reserve(now time.Time) time.Duration {
	wait := max(c.TimeUntilAllowed(now), c.EnforceMinSpacing(now, c.lastCall))
	c.lastCall = now.Add(wait)
	return wait
}

func (c *Controller) LastCall() time.Time {
	return c.lastCall
}

// Release hands back a reserved slot that was never used. Only the most
// recent slot can be returned; once another caller has booked after it,
// releasing would collapse their spacing.
func (c *Controller) Release(slot, previous time.Time) {
	if c.lastCall.Equal(slot) {
		c.lastCall = previous
	}
}

// LastBase is the pre-jitter wait of the latest transient failure, zero after
// a success.
func (c *Controller) LastBase() time.Duration {
	return c.lastBase
}

func (c *Controller) MinInterval() time.Duration {
	return c.minInterval
}

func (c *Controller) ConsecutiveFailures() int {
	return c.consecutiveFailures
}
