package rate

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/pashuarogyam/vetai/backoff"
	"github.com/pashuarogyam/vetai/classify"
	"github.com/pashuarogyam/vetai/quota"
)

// Limiter gates every provider call on the daily quota and the adaptive
// backoff. One mutex covers both so the decision and the slot reservation are
// atomic; sleeping happens outside of it.
type Limiter struct {
	quota   *quota.Clock
	backoff *backoff.Controller
	mu      sync.Mutex

	// Optional. Nil disables persistence.
	store          quota.Store
	keyFingerprint string

	// Snapshots are numbered under mu; saveMu orders the writes so an older
	// snapshot never overwrites a newer one.
	saveMu    sync.Mutex
	sequence  uint64
	savedUpTo uint64

	// Optional. Receives every imposed wait.
	observeWait func(time.Duration)

	logger *zap.SugaredLogger

	// Must be used for every time read to keep tests deterministic.
	clock clock.Clock
}

type Option func(*Limiter)

// WithStore persists the quota clock after every observed outcome. The
// fingerprint ties the saved counters to one API key.
func WithStore(store quota.Store, keyFingerprint string) Option {
	return func(l *Limiter) {
		l.store = store
		l.keyFingerprint = keyFingerprint
	}
}

func WithWaitObserver(observe func(time.Duration)) Option {
	return func(l *Limiter) {
		l.observeWait = observe
	}
}

func NewLimiter(
	quotaClock *quota.Clock,
	controller *backoff.Controller,
	logger *zap.SugaredLogger,
	options ...Option,
) *Limiter {
	return NewLimiterWithClock(quotaClock, controller, logger, clock.New(), options...)
}

func NewLimiterWithClock(
	quotaClock *quota.Clock,
	controller *backoff.Controller,
	logger *zap.SugaredLogger,
	clk clock.Clock,
	options ...Option,
) *Limiter {
	l := &Limiter{
		quota:   quotaClock,
		backoff: controller,
		logger:  logger,
		clock:   clk,
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Restore loads the persisted quota clock. A snapshot recorded for a
// different API key is ignored so a new key starts with a clean quota.
func (l *Limiter) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	snapshot, err := l.store.Load(ctx)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return nil
	}
	if snapshot.KeyFingerprint != l.keyFingerprint {
		l.logger.Infow("Ignoring quota snapshot of another API key")
		return nil
	}

	l.mu.Lock()
	l.quota.Restore(*snapshot)
	exceeded := l.quota.IsExceeded()
	l.mu.Unlock()

	l.logger.Infow("Restored quota state", "calls_today", snapshot.CallsToday, "exceeded", exceeded)
	return nil
}

// ShouldBlock waits until the next call may start. It returns true when the
// quota forbids calling, either before or after the wait.
func (l *Limiter) ShouldBlock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	if l.quota.IsExceeded() {
		l.mu.Unlock()
		return true, nil
	}
	now := l.clock.Now()
	previous := l.backoff.LastCall()
	wait := l.backoff.Reserve(now)
	l.mu.Unlock()

	if wait > 0 {
		if l.observeWait != nil {
			l.observeWait(wait)
		}
		l.logger.Debugw("Waiting before provider call", "wait", wait)

		timer := l.clock.Timer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			l.mu.Lock()
			l.backoff.Release(now.Add(wait), previous)
			l.mu.Unlock()
			return false, ctx.Err()
		}
	}

	// A concurrent caller may have spent the quota while this one slept.
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quota.IsExceeded(), nil
}

func (l *Limiter) OnSuccess(ctx context.Context) {
	l.mu.Lock()
	l.quota.RegisterCall()
	l.backoff.ObserveSuccess(l.clock.Now())
	snapshot, sequence := l.snapshot()
	l.mu.Unlock()

	l.persist(ctx, snapshot, sequence)
}

// OnError records a rate-limit failure and returns the wait it imposes.
func (l *Limiter) OnError(ctx context.Context, message string) time.Duration {
	isQuota := classify.IsQuota(message)

	l.mu.Lock()
	wait := l.backoff.ObserveFailure(l.clock.Now(), isQuota)
	if isQuota {
		l.quota.MarkExceeded()
	}
	failures := l.backoff.ConsecutiveFailures()
	snapshot, sequence := l.snapshot()
	l.mu.Unlock()

	if isQuota {
		l.logger.Warnw("Provider quota exhausted", "message", message)
	} else {
		l.logger.Infow("Provider rate limited", "wait", wait, "consecutive_failures", failures)
	}
	l.persist(ctx, snapshot, sequence)
	return wait
}

func (l *Limiter) Status() quota.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quota.Status()
}

func (l *Limiter) IsQuotaExceeded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quota.IsExceeded()
}

// MarkQuotaExceeded records a quota failure observed outside the normal call
// path, e.g., by a health check.
func (l *Limiter) MarkQuotaExceeded(ctx context.Context) {
	l.mu.Lock()
	l.quota.MarkExceeded()
	snapshot, sequence := l.snapshot()
	l.mu.Unlock()

	l.persist(ctx, snapshot, sequence)
}

func (l *Limiter) ClearQuota(ctx context.Context) {
	l.mu.Lock()
	l.quota.Clear()
	snapshot, sequence := l.snapshot()
	l.mu.Unlock()

	l.persist(ctx, snapshot, sequence)
}

// snapshot must be called with mu held.
func (l *Limiter) snapshot() (quota.Snapshot, uint64) {
	l.sequence++
	return l.quota.Snapshot(l.keyFingerprint), l.sequence
}

// persist saves with a context detached from the request's cancellation.
func (l *Limiter) persist(ctx context.Context, snapshot quota.Snapshot, sequence uint64) {
	if l.store == nil {
		return
	}
	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	if sequence <= l.savedUpTo {
		return
	}
	if err := l.store.Save(context.WithoutCancel(ctx), snapshot); err != nil {
		l.logger.Warnw("Failed to save quota state", "error", err)
		return
	}
	l.savedUpTo = sequence
}
