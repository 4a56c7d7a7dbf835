package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/pashuarogyam/vetai"
	"github.com/pashuarogyam/vetai/provider"
)

// Endpoint calls the Gemini API. Clients are created lazily per API key and
// reused.
type Endpoint struct {
	defaultAPIKey string

	// API key -> client
	clients   map[string]*genai.Client
	clientsMu sync.Mutex

	// Overrides the API base URL. Empty uses the public endpoint.
	baseURL string

	// Nil uses the SDK's default client.
	httpClient *http.Client
}

type Option func(*Endpoint)

func WithBaseURL(baseURL string) Option {
	return func(ep *Endpoint) {
		ep.baseURL = baseURL
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(ep *Endpoint) {
		ep.httpClient = httpClient
	}
}

func NewEndpoint(defaultAPIKey string, options ...Option) *Endpoint {
	ep := &Endpoint{
		defaultAPIKey: defaultAPIKey,
		clients:       make(map[string]*genai.Client),
	}
	for _, option := range options {
		option(ep)
	}
	return ep
}

func (ep *Endpoint) Invoke(
	ctx context.Context, model string, prompt string, image *vetai.Image, apiKey string,
) (string, error) {
	client, err := ep.client(ctx, apiKey)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{{Text: prompt}}
	if image != nil && len(image.Data) > 0 {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: image.MimeType,
				Data:     image.Data,
			},
		})
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	response, err := client.Models.GenerateContent(ctx, model, contents, toGeminiConfig())
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(responseText(response))
	if text == "" {
		return "", provider.ErrEmptyResponse
	}
	return text, nil
}

func (ep *Endpoint) Ping(ctx context.Context, model string, apiKey string) (time.Duration, error) {
	client, err := ep.client(ctx, apiKey)
	if err != nil {
		return 0, err
	}

	config := &genai.GenerateContentConfig{MaxOutputTokens: 1}
	contents := []*genai.Content{
		{
			Parts: []*genai.Part{{Text: "Ping"}},
			Role:  "user",
		},
	}

	start := time.Now()
	if _, err := client.Models.GenerateContent(ctx, model, contents, config); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func (ep *Endpoint) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		apiKey = ep.defaultAPIKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("invalid api key: no Gemini API key configured")
	}

	ep.clientsMu.Lock()
	defer ep.clientsMu.Unlock()

	if client, exists := ep.clients[apiKey]; exists {
		return client, nil
	}

	config := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: ep.httpClient,
	}
	if ep.baseURL != "" {
		config.HTTPOptions = genai.HTTPOptions{BaseURL: ep.baseURL}
	}
	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %v", err)
	}
	ep.clients[apiKey] = client
	return client, nil
}

func toGeminiConfig() *genai.GenerateContentConfig {
	// Veterinary answers routinely mention injuries, blood and medication,
	// which the default thresholds tend to block.
	return &genai.GenerateContentConfig{
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
		},
	}
}

func responseText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 {
		return ""
	}
	candidate := response.Candidates[0]
	if candidate.Content == nil {
		return ""
	}
	var builder strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			builder.WriteString(part.Text)
		}
	}
	return builder.String()
}
