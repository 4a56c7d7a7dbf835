package quota

import (
	"time"

	"github.com/benbjohnson/clock"
)

const dateLayout = "2006-01-02"

// Clock tracks the daily call budget against the provider and the local day
// rollover. It is not safe for concurrent use; rate.Limiter serializes access.
type Clock struct {
	// Successful calls counted for lastResetDate.
	callsToday int

	// Ceiling of calls per local day.
	limit int

	// Local calendar date the counter was last zeroed. E.g., "2025-11-19"
	lastResetDate string

	// Set once the limit is reached or the provider reports quota exhaustion.
	exceeded bool

	// When exceeded should be cleared. Zero when not set.
	resetAt time.Time

	// Time zone that defines "today" and "midnight".
	location *time.Location

	// Must be used for every time read to keep tests deterministic.
	clock clock.Clock
}

// Status is a read-only view of the quota clock.
type Status struct {
	Exceeded   bool
	ResetAt    *time.Time
	CallsToday int
	Limit      int
}

func NewClock(limit int, location *time.Location) *Clock {
	return NewClockWithClock(limit, location, clock.New())
}

func NewClockWithClock(limit int, location *time.Location, clk clock.Clock) *Clock {
	if location == nil {
		location = time.Local
	}
	if limit <= 0 {
		limit = 1
	}
	c := &Clock{
		limit:    limit,
		location: location,
		clock:    clk,
	}
	c.lastResetDate = c.today()
	return c
}

// RegisterCall counts one call for the current local day.
func (c *Clock) RegisterCall() {
	c.rollover()
	c.callsToday++
}

// IsExceeded re-evaluates the quota and reports whether calls are forbidden.
// An expired exceeded flag is cleared as a side effect.
func (c *Clock) IsExceeded() bool {
	c.rollover()
	if c.callsToday >= c.limit {
		return true
	}
	if c.exceeded && c.clock.Now().Before(c.resetAt) {
		return true
	}
	c.exceeded = false
	c.resetAt = time.Time{}
	return false
}

// MarkExceeded records that the provider reported quota exhaustion. The reset
// time is the next local midnight after the first detection; repeated marks
// before that time keep it.
func (c *Clock) MarkExceeded() {
	c.rollover()
	now := c.clock.Now()
	if c.exceeded && now.Before(c.resetAt) {
		return
	}
	c.exceeded = true
	c.resetAt = nextMidnight(now.In(c.location))
}

// Clear drops any exceeded state but keeps the call counter.
func (c *Clock) Clear() {
	c.exceeded = false
	c.resetAt = time.Time{}
}

// ResetAt returns when the exceeded state will be cleared, if any.
func (c *Clock) ResetAt() (time.Time, bool) {
	if !c.IsExceeded() {
		return time.Time{}, false
	}
	if c.exceeded {
		return c.resetAt, true
	}
	// Counter reached the limit, which only rolls over at midnight.
	return nextMidnight(c.clock.Now().In(c.location)), true
}

func (c *Clock) Status() Status {
	status := Status{Limit: c.limit}
	if resetAt, exceeded := c.ResetAt(); exceeded {
		status.Exceeded = true
		status.ResetAt = &resetAt
	}
	status.CallsToday = c.callsToday
	return status
}

func (c *Clock) rollover() {
	today := c.today()
	if today == c.lastResetDate {
		return
	}
	c.callsToday = 0
	c.exceeded = false
	c.resetAt = time.Time{}
	c.lastResetDate = today
}

func (c *Clock) today() string {
	return c.clock.Now().In(c.location).Format(dateLayout)
}

func nextMidnight(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day+1, 0, 0, 0, 0, now.Location())
}
