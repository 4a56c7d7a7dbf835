package quota

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func newTestClock(limit int, now time.Time) (*Clock, *clock.Mock) {
	mock := clock.NewMock()
	mock.Set(now)
	return NewClockWithClock(limit, time.UTC, mock), mock
}

func TestClock(t *testing.T) {
	start := time.Date(2025, 11, 19, 15, 30, 0, 0, time.UTC)

	t.Run("within limit", func(t *testing.T) {
		q, _ := newTestClock(3, start)
		q.RegisterCall()
		q.RegisterCall()
		assert.False(t, q.IsExceeded())

		status := q.Status()
		assert.False(t, status.Exceeded)
		assert.Nil(t, status.ResetAt)
		assert.Equal(t, 2, status.CallsToday)
		assert.Equal(t, 3, status.Limit)
	})

	t.Run("limit reached", func(t *testing.T) {
		q, _ := newTestClock(2, start)
		q.RegisterCall()
		q.RegisterCall()
		assert.True(t, q.IsExceeded())

		resetAt, ok := q.ResetAt()
		assert.True(t, ok)
		assert.Equal(t, time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC), resetAt)
	})

	t.Run("rollover resets counter", func(t *testing.T) {
		q, mock := newTestClock(2, start)
		q.RegisterCall()
		q.RegisterCall()
		assert.True(t, q.IsExceeded())

		mock.Set(time.Date(2025, 11, 20, 0, 0, 1, 0, time.UTC))
		assert.False(t, q.IsExceeded())
		assert.Equal(t, 0, q.Status().CallsToday)
	})

	t.Run("mark exceeded until next midnight", func(t *testing.T) {
		q, mock := newTestClock(100, start)
		q.MarkExceeded()
		assert.True(t, q.IsExceeded())

		mock.Add(8*time.Hour + 29*time.Minute)
		assert.True(t, q.IsExceeded())

		mock.Add(2 * time.Minute)
		assert.False(t, q.IsExceeded())
		_, ok := q.ResetAt()
		assert.False(t, ok)
	})

	t.Run("repeated marks keep first reset time", func(t *testing.T) {
		q, mock := newTestClock(100, start)
		q.MarkExceeded()
		first, _ := q.ResetAt()

		mock.Add(2 * time.Hour)
		q.MarkExceeded()
		second, _ := q.ResetAt()
		assert.Equal(t, first, second)
	})

	t.Run("mark after expiry sets a new reset time", func(t *testing.T) {
		q, mock := newTestClock(100, start)
		q.MarkExceeded()

		mock.Set(time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC))
		q.MarkExceeded()
		resetAt, ok := q.ResetAt()
		assert.True(t, ok)
		assert.Equal(t, time.Date(2025, 11, 21, 0, 0, 0, 0, time.UTC), resetAt)
	})

	t.Run("clear keeps counter", func(t *testing.T) {
		q, _ := newTestClock(100, start)
		q.RegisterCall()
		q.MarkExceeded()
		q.Clear()
		assert.False(t, q.IsExceeded())
		assert.Equal(t, 1, q.Status().CallsToday)
	})

	t.Run("midnight follows configured location", func(t *testing.T) {
		kolkata := time.FixedZone("IST", 5*60*60+30*60)
		mock := clock.NewMock()
		// 20:00 UTC is already 01:30 on the next day in IST.
		mock.Set(time.Date(2025, 11, 19, 20, 0, 0, 0, time.UTC))
		q := NewClockWithClock(10, kolkata, mock)
		q.MarkExceeded()

		resetAt, _ := q.ResetAt()
		assert.Equal(t, time.Date(2025, 11, 21, 0, 0, 0, 0, kolkata), resetAt)
	})

	t.Run("non-positive limit", func(t *testing.T) {
		q, _ := newTestClock(0, start)
		assert.False(t, q.IsExceeded())
		q.RegisterCall()
		assert.True(t, q.IsExceeded())
	})
}

func TestSnapshot(t *testing.T) {
	start := time.Date(2025, 11, 19, 15, 30, 0, 0, time.UTC)

	t.Run("round trip", func(t *testing.T) {
		q, _ := newTestClock(5, start)
		q.RegisterCall()
		q.MarkExceeded()
		snapshot := q.Snapshot("abcd")
		assert.Equal(t, "abcd", snapshot.KeyFingerprint)
		assert.Equal(t, "2025-11-19", snapshot.LastResetDate)

		restored, _ := newTestClock(5, start.Add(time.Hour))
		restored.Restore(snapshot)
		assert.True(t, restored.IsExceeded())
		assert.Equal(t, 1, restored.Status().CallsToday)
	})

	t.Run("stale snapshot rolls over", func(t *testing.T) {
		q, _ := newTestClock(1, start)
		q.RegisterCall()
		snapshot := q.Snapshot("abcd")

		restored, _ := newTestClock(1, start.Add(24*time.Hour))
		restored.Restore(snapshot)
		assert.False(t, restored.IsExceeded())
		assert.Equal(t, 0, restored.Status().CallsToday)
	})

	t.Run("fingerprint", func(t *testing.T) {
		assert.Len(t, Fingerprint("key"), 16)
		assert.Equal(t, Fingerprint("key"), Fingerprint("key"))
		assert.NotEqual(t, Fingerprint("key"), Fingerprint("other"))
	})
}
