package provider

import (
	"context"
	"errors"
	"time"

	"github.com/pashuarogyam/vetai"
)

// ErrEmptyResponse is returned when the provider answers without any text.
var ErrEmptyResponse = errors.New("empty response from provider")

// Invoker issues exactly one provider call per Invoke. It does not consult or
// update the rate limiter; the caller does that.
type Invoker interface {
	// Returns the trimmed answer text. Provider failures are returned as errors
	// whose messages can be classified.
	Invoke(ctx context.Context, model string, prompt string, image *vetai.Image, apiKey string) (string, error)

	// Sends a minimal request to check the model is reachable.
	Ping(ctx context.Context, model string, apiKey string) (time.Duration, error)
}
