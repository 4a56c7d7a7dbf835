// Package advisor answers farmer and pet owner questions. It turns a question
// into a prompt, drives it through the orchestrator and degrades to canned
// guidance when no model can answer.
package advisor

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pashuarogyam/vetai"
	"github.com/pashuarogyam/vetai/classify"
	"github.com/pashuarogyam/vetai/fallback"
	"github.com/pashuarogyam/vetai/monitoring"
	"github.com/pashuarogyam/vetai/orchestrator"
	"github.com/pashuarogyam/vetai/provider"
	"github.com/pashuarogyam/vetai/rate"
)

const (
	quotaApology = "AI answers are paused because today's request quota is used up. " +
		"Here is some general guidance in the meantime.\n\n"
	unavailableApology = "AI answers are temporarily unavailable. " +
		"Here is some general guidance in the meantime.\n\n"

	emptyQuestionMessage = "Please enter a question."
	fatalMessage         = "The AI service rejected the request. Please contact support."
	cancelledMessage     = "The request was cancelled."
	internalMessage      = "Something went wrong while answering. Please try again."
)

// Reply is the answer to one question. Exactly one of Text and Error is set.
// Fallback replies carry canned guidance in Text and set IsFallback.
type Reply struct {
	Text       string `json:"text,omitempty"`
	Error      string `json:"error,omitempty"`
	IsFallback bool   `json:"is_fallback"`

	// Model that produced Text. Empty for cached and fallback replies.
	Model  string `json:"model,omitempty"`
	Cached bool   `json:"cached"`
}

// Health is the outcome of a provider probe.
type Health struct {
	Healthy bool          `json:"healthy"`
	Message string        `json:"message"`
	Latency time.Duration `json:"latency_ns,omitempty"`
}

// Settings are applied to every request the service issues.
type Settings struct {
	PreferredModel string
	FallbackModels []string
	MaxRetries     int

	// Empty means the provider's configured key.
	APIKey string
}

type Service struct {
	orchestrator *orchestrator.Orchestrator
	limiter      *rate.Limiter

	// Used directly only for health probes.
	invoker provider.Invoker

	settings Settings

	// Optional.
	metrics *monitoring.Metrics

	logger *zap.SugaredLogger
}

func NewService(
	orch *orchestrator.Orchestrator,
	limiter *rate.Limiter,
	invoker provider.Invoker,
	settings Settings,
	metrics *monitoring.Metrics,
	logger *zap.SugaredLogger,
) *Service {
	return &Service{
		orchestrator: orch,
		limiter:      limiter,
		invoker:      invoker,
		settings:     settings,
		metrics:      metrics,
		logger:       logger,
	}
}

// Ask answers a question, optionally about an image. It never returns an
// empty Reply.
func (s *Service) Ask(ctx context.Context, question string, image *vetai.Image, history []Exchange) Reply {
	question = strings.TrimSpace(question)
	hasImage := image != nil && len(image.Data) > 0
	if question == "" && !hasImage {
		return Reply{Error: emptyQuestionMessage}
	}

	prompt := VeterinaryPrompt(question, history)
	if hasImage {
		prompt = ImagePrompt(question)
	} else {
		image = nil
	}

	result, err := s.orchestrator.Call(ctx, vetai.Request{
		Prompt:         prompt,
		Image:          image,
		PreferredModel: s.settings.PreferredModel,
		FallbackModels: s.settings.FallbackModels,
		MaxRetries:     s.settings.MaxRetries,
		APIKey:         s.settings.APIKey,
	})
	if err == nil {
		return Reply{Text: result.Text, Model: result.Model, Cached: result.Cached}
	}

	var (
		quotaErr       orchestrator.QuotaExceededError
		unavailableErr orchestrator.UnavailableError
		fatalErr       orchestrator.FatalError
		cancelledErr   orchestrator.CancelledError
	)
	switch {
	case errors.As(err, &quotaErr):
		return s.fallbackReply(question, quotaApology)
	case errors.As(err, &unavailableErr):
		return s.fallbackReply(question, unavailableApology)
	case errors.As(err, &fatalErr):
		s.logger.Errorw("Provider rejected the request", "error", err)
		return Reply{Error: fatalMessage}
	case errors.As(err, &cancelledErr):
		return Reply{Error: cancelledMessage}
	}
	s.logger.Errorw("Unexpected error while answering", "error", err)
	return Reply{Error: internalMessage}
}

func (s *Service) fallbackReply(question string, apology string) Reply {
	s.metrics.RecordFallback()
	s.logger.Infow("Serving fallback guidance")
	return Reply{Text: apology + fallback.Respond(question), IsFallback: true}
}

// QuotaStatus reports the daily quota as served by status endpoints.
func (s *Service) QuotaStatus() vetai.QuotaStatus {
	status := s.limiter.Status()
	return vetai.QuotaStatus{
		QuotaExceeded: status.Exceeded,
		ResetTime:     status.ResetAt,
		CallsToday:    status.CallsToday,
		DailyLimit:    status.Limit,
	}
}

// HealthCheck probes the preferred model. It spends one call of the daily
// quota, and none when the quota is already exhausted.
func (s *Service) HealthCheck(ctx context.Context) Health {
	if s.limiter.IsQuotaExceeded() {
		return Health{Message: "Daily quota exceeded"}
	}
	blocked, err := s.limiter.ShouldBlock(ctx)
	if err != nil {
		return Health{Message: "Health check cancelled"}
	}
	if blocked {
		return Health{Message: "Daily quota exceeded"}
	}

	latency, err := s.invoker.Ping(ctx, s.settings.PreferredModel, s.settings.APIKey)
	if err != nil {
		statusCode, message := classify.Describe(err)
		kind := classify.Classify(statusCode, message)
		s.logger.Warnw("Model health check failed",
			"model", s.settings.PreferredModel, "kind", kind.String(), "error", err)

		switch kind {
		case classify.Quota:
			s.limiter.MarkQuotaExceeded(ctx)
			s.metrics.SetQuotaExceeded(true)
			return Health{Message: "Daily quota exceeded: " + err.Error()}
		case classify.Transient:
			s.limiter.OnError(ctx, message)
		}
		return Health{Message: "Model health check error: " + err.Error()}
	}

	s.limiter.OnSuccess(ctx)
	s.logger.Infow("Model health check passed", "model", s.settings.PreferredModel, "latency", latency)
	return Health{Healthy: true, Message: "Model is healthy", Latency: latency}
}
