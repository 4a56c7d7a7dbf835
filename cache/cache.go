// Package cache stores provider answers for text-only prompts so a repeated
// question does not spend quota.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

const keyPrefix = "vetai:cache:"

type Cache interface {
	// Returns ok=false for missing and expired entries.
	Get(ctx context.Context, prompt string, hasImage bool) (string, bool, error)

	Put(ctx context.Context, prompt string, hasImage bool, text string) error
}

// Key returns the storage key of a prompt. The image flag is part of the key
// so an answer about a photo is never served for the bare text.
func Key(prompt string, hasImage bool) string {
	hash := sha256.Sum256([]byte(prompt + "\x00" + strconv.FormatBool(hasImage)))
	return keyPrefix + hex.EncodeToString(hash[:])
}

// Noop never stores anything. Used when caching is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string, bool) (string, bool, error) {
	return "", false, nil
}

func (Noop) Put(context.Context, string, bool, string) error {
	return nil
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Hour
	}
	return ttl
}
