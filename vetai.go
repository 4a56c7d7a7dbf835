package vetai

import "time"

// Image is a single, already validated image payload sent along with a prompt.
type Image struct {
	// MIME type of the payload. E.g., "image/jpeg"
	MimeType string `json:"mime_type"`

	// Encoded image bytes.
	Data []byte `json:"-"`
}

// Request is one question to the generative-AI provider.
type Request struct {
	// Prompt already assembled by the caller, including any conversation context.
	Prompt string

	// Optional image. Requests with an image are never cached.
	Image *Image

	// Model tried first. E.g., "gemini-2.0-flash"
	PreferredModel string

	// Models tried after PreferredModel, in order. Duplicates are ignored.
	FallbackModels []string

	// Number of passes over the model list. Values below 1 mean a single pass.
	MaxRetries int

	// Provider API key. Empty means the key configured for the process.
	APIKey string
}

// HasImage reports whether the request carries an image payload.
func (r *Request) HasImage() bool {
	return r.Image != nil && len(r.Image.Data) > 0
}

// QuotaStatus is the operational view of the daily quota, served by status endpoints.
type QuotaStatus struct {
	// True while no provider calls are allowed.
	QuotaExceeded bool `json:"quota_exceeded"`

	// When the quota is expected to be available again. Nil when not exceeded.
	ResetTime *time.Time `json:"reset_time"`

	// Successful calls counted for the current local day.
	CallsToday int `json:"calls_today"`

	// Configured ceiling of calls per local day.
	DailyLimit int `json:"daily_limit"`
}
