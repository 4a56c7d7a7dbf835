package cache

import (
	"context"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyCache shares answers between replicas. Expiry is left to Valkey.
type ValkeyCache struct {
	client valkey.Client
	ttl    time.Duration
}

func NewValkeyCache(client valkey.Client, ttl time.Duration) *ValkeyCache {
	return &ValkeyCache{client: client, ttl: ttlOrDefault(ttl)}
}

func (c *ValkeyCache) Get(
	ctx context.Context, prompt string, hasImage bool,
) (string, bool, error) {
	valkeyResponse := c.client.Do(ctx, c.client.B().Get().Key(Key(prompt, hasImage)).Build())
	if err := valkeyResponse.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, err
	}
	text, err := valkeyResponse.ToString()
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (c *ValkeyCache) Put(
	ctx context.Context, prompt string, hasImage bool, text string,
) error {
	return c.client.Do(
		ctx, c.client.B().Set().
			Key(Key(prompt, hasImage)).
			Value(text).
			Ex(c.ttl).
			Build(),
	).Error()
}
