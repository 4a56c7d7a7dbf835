// Package image turns user uploads into payloads the provider accepts:
// validated, bounded in size and downsampled.
package image

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pashuarogyam/vetai"
)

const (
	// Largest upload accepted, before any downsampling.
	MaxBytes = 10 * 1024 * 1024

	// Longest side sent to the provider.
	MaxDimension = 2048

	// Largest decoded area accepted. A small compressed file can declare a
	// huge canvas.
	MaxPixels = 50_000_000
)

// InvalidImageError means the upload can not be sent to the provider.
type InvalidImageError struct{ error }

// Formats the provider reads directly. Anything else image-like is re-encoded.
var passThroughTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Prepare accepts a base64 data URL. Remote URLs are rejected; the server
// never fetches on behalf of a client.
func Prepare(source string) (*vetai.Image, error) {
	source = strings.TrimSpace(source)
	if !strings.HasPrefix(source, "data:") {
		return nil, InvalidImageError{fmt.Errorf("image must be a data URL")}
	}
	data, err := decodeDataURL(source)
	if err != nil {
		return nil, err
	}
	return PrepareBytes(data)
}

// PrepareBytes validates raw upload bytes. The declared MIME type of the
// upload is ignored; the content decides.
func PrepareBytes(data []byte) (*vetai.Image, error) {
	if len(data) == 0 {
		return nil, InvalidImageError{fmt.Errorf("empty image")}
	}
	if len(data) > MaxBytes {
		return nil, InvalidImageError{fmt.Errorf("image is larger than %d MB", MaxBytes/1024/1024)}
	}

	detected := mimetype.Detect(data)
	mimeType := detected.String()
	if semicolon := strings.Index(mimeType, ";"); semicolon >= 0 {
		mimeType = mimeType[:semicolon]
	}
	if !IsImageMimeType(mimeType) {
		return nil, InvalidImageError{fmt.Errorf("not an image: %s", mimeType)}
	}

	return fit(data, mimeType)
}

func IsImageMimeType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

func decodeDataURL(dataURL string) ([]byte, error) {
	parts := strings.SplitN(dataURL, ",", 2)
	if len(parts) != 2 {
		return nil, InvalidImageError{fmt.Errorf("invalid data URL format")}
	}
	header, payload := parts[0], parts[1]
	if !strings.Contains(header, ";base64") {
		return nil, InvalidImageError{fmt.Errorf("data URL must be base64 encoded")}
	}
	// Base64 inflates by 4/3; reject before decoding.
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxBytes+3 {
		return nil, InvalidImageError{fmt.Errorf("image is larger than %d MB", MaxBytes/1024/1024)}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, InvalidImageError{fmt.Errorf("failed to decode base64 data: %v", err)}
	}
	return data, nil
}
