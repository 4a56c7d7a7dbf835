package quota

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Snapshot is the persisted form of a Clock.
type Snapshot struct {
	CallsToday    int       `json:"calls_today"`
	LastResetDate string    `json:"last_reset_date"`
	Exceeded      bool      `json:"exceeded"`
	ResetAt       time.Time `json:"reset_at"`

	// Identifies the API key the counters belong to. A snapshot recorded for
	// another key says nothing about the current key's quota.
	KeyFingerprint string `json:"key_fingerprint"`
}

// Store persists quota snapshots across process restarts.
type Store interface {
	// Returns nil without error when nothing was saved yet.
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
}

// Fingerprint returns a short non-reversible identifier of an API key.
func Fingerprint(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:8])
}

func (c *Clock) Snapshot(keyFingerprint string) Snapshot {
	return Snapshot{
		CallsToday:     c.callsToday,
		LastResetDate:  c.lastResetDate,
		Exceeded:       c.exceeded,
		ResetAt:        c.resetAt,
		KeyFingerprint: keyFingerprint,
	}
}

// Restore loads a snapshot. Day rollover is applied on the next query, so a
// snapshot from a previous day restores as a fresh budget.
func (c *Clock) Restore(snapshot Snapshot) {
	c.callsToday = snapshot.CallsToday
	c.lastResetDate = snapshot.LastResetDate
	c.exceeded = snapshot.Exceeded
	c.resetAt = snapshot.ResetAt
	if c.lastResetDate == "" {
		c.lastResetDate = c.today()
	}
}
