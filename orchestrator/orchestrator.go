// Package orchestrator drives one request through the model list: it gates
// every attempt on the rate limiter, reacts to each classified failure and
// stops at the first answer.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pashuarogyam/vetai"
	"github.com/pashuarogyam/vetai/cache"
	"github.com/pashuarogyam/vetai/classify"
	"github.com/pashuarogyam/vetai/monitoring"
	"github.com/pashuarogyam/vetai/provider"
	"github.com/pashuarogyam/vetai/utils/array"
)

const instrumentationName = "github.com/pashuarogyam/vetai/orchestrator"

const (
	QuotaExceededMessage = "Daily API quota exceeded. Please try again tomorrow."
	UnavailableMessage   = "All available AI models are currently unavailable. Please try again later."
)

type (
	// The daily quota is spent; no model will answer before the reset.
	QuotaExceededError struct{ error }

	// Every attempt on every model failed.
	UnavailableError struct{ error }

	// The provider rejected the request in a way retrying cannot fix.
	FatalError struct{ error }

	// The caller gave up while a call or a wait was in progress.
	CancelledError struct{ error }
)

// Gate is the part of rate.Limiter the orchestrator depends on.
type Gate interface {
	ShouldBlock(ctx context.Context) (bool, error)
	OnSuccess(ctx context.Context)
	OnError(ctx context.Context, message string) time.Duration
	IsQuotaExceeded() bool
}

type Result struct {
	Text string

	// Model that produced Text. Empty for cached answers.
	Model string

	Cached bool
}

type Orchestrator struct {
	gate    Gate
	invoker provider.Invoker
	cache   cache.Cache

	// Optional.
	metrics *monitoring.Metrics

	// Network failures wait (attempt+1) times this before the next pass.
	networkRetryStep time.Duration

	tracer  trace.Tracer
	latency metric.Float64Histogram

	logger *zap.SugaredLogger

	// Must be used for every wait to keep tests deterministic.
	clock clock.Clock
}

func NewOrchestrator(
	gate Gate,
	invoker provider.Invoker,
	responseCache cache.Cache,
	metrics *monitoring.Metrics,
	networkRetryStep time.Duration,
	logger *zap.SugaredLogger,
) *Orchestrator {
	return newOrchestratorWithClock(
		gate, invoker, responseCache, metrics, networkRetryStep, logger, clock.New())
}

func newOrchestratorWithClock(
	gate Gate,
	invoker provider.Invoker,
	responseCache cache.Cache,
	metrics *monitoring.Metrics,
	networkRetryStep time.Duration,
	logger *zap.SugaredLogger,
	clk clock.Clock,
) *Orchestrator {
	if responseCache == nil {
		responseCache = cache.Noop{}
	}
	latency, err := otel.Meter(instrumentationName).Float64Histogram(
		"vetai.provider.latency",
		metric.WithDescription("Latency of single provider calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warnw("Failed to create latency histogram", "error", err)
	}
	return &Orchestrator{
		gate:             gate,
		invoker:          invoker,
		cache:            responseCache,
		metrics:          metrics,
		networkRetryStep: networkRetryStep,
		tracer:           otel.Tracer(instrumentationName),
		latency:          latency,
		logger:           logger,
		clock:            clk,
	}
}

// Candidates returns the models to try in order: the preferred one, then the
// fallbacks, without blanks and repetitions.
func Candidates(preferred string, fallbacks []string) []string {
	models := make([]string, 0, len(fallbacks)+1)
	models = append(models, strings.TrimSpace(preferred))
	for _, model := range fallbacks {
		models = append(models, strings.TrimSpace(model))
	}
	models = array.Filter(models, func(model string) bool { return model != "" })
	return array.Unique(models)
}

func (o *Orchestrator) Call(ctx context.Context, request vetai.Request) (*Result, error) {
	cacheable := !request.HasImage()

	ctx, span := o.tracer.Start(ctx, "orchestrator.Call", trace.WithAttributes(
		attribute.Bool("vetai.has_image", request.HasImage()),
	))
	defer span.End()

	if cacheable {
		if text, ok := o.cachedText(ctx, request.Prompt); ok {
			span.SetAttributes(attribute.Bool("vetai.cached", true))
			return &Result{Text: text, Cached: true}, nil
		}
	}

	result, err := o.call(ctx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("vetai.model", result.Model))

	if cacheable {
		// Caching should be done even if the request has been canceled.
		if err := o.cache.Put(context.WithoutCancel(ctx), request.Prompt, false, result.Text); err != nil {
			o.logger.Warnw("Failed to cache response", "error", err)
		}
	}
	return result, nil
}

func (o *Orchestrator) call(ctx context.Context, request vetai.Request) (*Result, error) {
	candidates := Candidates(request.PreferredModel, request.FallbackModels)
	if len(candidates) == 0 {
		return nil, UnavailableError{errors.New(UnavailableMessage)}
	}
	retries := max(1, request.MaxRetries)

	for attempt := 0; attempt < retries; attempt++ {
	models:
		for _, model := range candidates {
			blocked, err := o.gate.ShouldBlock(ctx)
			if err != nil {
				return nil, CancelledError{fmt.Errorf("request cancelled: %w", err)}
			}
			if blocked {
				o.logger.Warnw("Quota exhausted, not calling the provider", "model", model, "attempt", attempt)
				o.metrics.SetQuotaExceeded(true)
				return nil, QuotaExceededError{errors.New(QuotaExceededMessage)}
			}

			text, err := o.invoke(ctx, model, request, attempt)
			if err == nil {
				o.gate.OnSuccess(ctx)
				o.metrics.SetQuotaExceeded(false)
				return &Result{Text: text, Model: model}, nil
			}
			if ctx.Err() != nil {
				return nil, CancelledError{fmt.Errorf("request cancelled: %w", ctx.Err())}
			}

			statusCode, message := classify.Describe(err)
			kind := classify.Classify(statusCode, message)
			o.logger.Infow("Provider call failed",
				"model", model, "attempt", attempt, "kind", kind.String(), "error", err)

			switch kind {
			case classify.NotFound, classify.Empty:
				continue
			case classify.Quota, classify.Transient:
				o.gate.OnError(ctx, message)
				if o.gate.IsQuotaExceeded() {
					o.metrics.SetQuotaExceeded(true)
					return nil, QuotaExceededError{errors.New(QuotaExceededMessage)}
				}
				continue
			case classify.Network:
				wait := time.Duration(attempt+1) * o.networkRetryStep
				if err := o.sleep(ctx, wait); err != nil {
					return nil, CancelledError{fmt.Errorf("request cancelled: %w", err)}
				}
				break models
			case classify.Fatal:
				return nil, FatalError{fmt.Errorf("provider rejected the request: %w", err)}
			default:
				break models
			}
		}
	}

	o.logger.Warnw("All models failed", "models", candidates, "retries", retries)
	return nil, UnavailableError{errors.New(UnavailableMessage)}
}

func (o *Orchestrator) invoke(
	ctx context.Context, model string, request vetai.Request, attempt int,
) (string, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.attempt", trace.WithAttributes(
		attribute.String("vetai.model", model),
		attribute.Int("vetai.attempt", attempt),
	))
	defer span.End()

	start := o.clock.Now()
	text, err := o.invoker.Invoke(ctx, model, request.Prompt, request.Image, request.APIKey)
	elapsed := o.clock.Since(start)

	outcome := "success"
	if err != nil {
		outcome = outcomeOf(classify.FromError(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.String("vetai.outcome", outcome))
	o.metrics.RecordCall(model, outcome)
	if o.latency != nil {
		o.latency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("outcome", outcome),
		))
	}
	return text, err
}

func (o *Orchestrator) cachedText(ctx context.Context, prompt string) (string, bool) {
	text, ok, err := o.cache.Get(ctx, prompt, false)
	switch {
	case err != nil:
		o.logger.Warnw("Failed to get cached response", "error", err)
		o.metrics.RecordCacheLookup("error")
		return "", false
	case ok:
		o.logger.Infow("Returning cached response")
		o.metrics.RecordCacheLookup("hit")
		return text, true
	}
	o.metrics.RecordCacheLookup("miss")
	return "", false
}

func (o *Orchestrator) sleep(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}
	timer := o.clock.Timer(wait)
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}

func outcomeOf(kind classify.Kind) string {
	switch kind {
	case classify.NotFound:
		return "not_found"
	case classify.Empty:
		return "empty_response"
	}
	return kind.String() + "_error"
}
