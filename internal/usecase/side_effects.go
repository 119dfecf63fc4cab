package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/domain/repository"
	"booking-engine/pkg/logger"
	"booking-engine/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
)

// Effect kinds
const (
	EffectResourceStatus = "resource_status"
	EffectEvent          = "event"
	EffectAudit          = "audit"
)

// Effect is a best-effort call made after a booking write committed
type Effect struct {
	Kind      string
	BookingID uint
	Run       func(ctx context.Context) error
}

// Dispatcher runs effects without ever failing the committed transition
type Dispatcher interface {
	Dispatch(effects ...Effect)
}

// RetryPolicy bounds each effect's attempts
type RetryPolicy struct {
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
}

// DefaultRetryPolicy is a short per-attempt timeout with two retries
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Timeout: 3 * time.Second, MaxRetries: 2, InitialInterval: 200 * time.Millisecond}
}

type effectRunner struct {
	policy  RetryPolicy
	logger  logger.Logger
	metrics *metrics.Metrics
}

// retries returns how many retries an effect kind may use. Events are
// published at most once.
func (r *effectRunner) retries(kind string) int {
	if kind == EffectEvent {
		return 0
	}
	return r.policy.MaxRetries
}

// run retries only upstream-unavailable failures; anything else is permanent
func (r *effectRunner) run(ctx context.Context, e Effect) {
	attempt := 0
	op := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
		err := e.Run(callCtx)
		if err != nil && !errors.Is(err, entity.ErrUpstreamUnavailable) && !errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.policy.InitialInterval
	eb.MaxElapsedTime = 0
	var b backoff.BackOff = backoff.WithMaxRetries(eb, uint64(r.retries(e.Kind)))
	b = backoff.WithContext(b, ctx)

	if err := backoff.Retry(op, b); err != nil {
		r.logger.Error("Side effect failed",
			"kind", e.Kind,
			"bookingID", e.BookingID,
			"attempts", attempt,
			"error", err)
		r.metrics.SideEffectFailures.WithLabelValues(e.Kind).Inc()
	}
}

// SyncDispatcher runs effects inline; used by the CLI and tests
type SyncDispatcher struct {
	runner effectRunner
}

// NewSyncDispatcher creates an inline dispatcher
func NewSyncDispatcher(policy RetryPolicy, logger logger.Logger, m *metrics.Metrics) *SyncDispatcher {
	return &SyncDispatcher{runner: effectRunner{policy: policy, logger: logger, metrics: m}}
}

// Dispatch runs each effect in order
func (d *SyncDispatcher) Dispatch(effects ...Effect) {
	for _, e := range effects {
		d.runner.run(context.Background(), e)
	}
}

// AsyncDispatcher queues effects for a pool of workers
type AsyncDispatcher struct {
	runner  effectRunner
	queue   chan Effect
	workers int
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	cancel  context.CancelFunc
}

// NewAsyncDispatcher creates a dispatcher with a bounded queue
func NewAsyncDispatcher(workers, queueSize int, policy RetryPolicy, logger logger.Logger, m *metrics.Metrics) *AsyncDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &AsyncDispatcher{
		runner:  effectRunner{policy: policy, logger: logger.With("component", "effect-dispatcher"), metrics: m},
		queue:   make(chan Effect, queueSize),
		workers: workers,
	}
}

// Start launches the workers. Effects keep running until Close drains the queue.
func (d *AsyncDispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for e := range d.queue {
				d.runner.run(ctx, e)
			}
		}()
	}
}

// Dispatch enqueues effects; a full queue drops the effect
func (d *AsyncDispatcher) Dispatch(effects ...Effect) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		for _, e := range effects {
			d.runner.logger.Error("Dispatcher closed, dropping side effect", "kind", e.Kind, "bookingID", e.BookingID)
			d.runner.metrics.SideEffectsDropped.Inc()
		}
		return
	}
	for _, e := range effects {
		select {
		case d.queue <- e:
		default:
			d.runner.logger.Error("Side effect queue full, dropping", "kind", e.Kind, "bookingID", e.BookingID)
			d.runner.metrics.SideEffectsDropped.Inc()
		}
	}
}

// Close stops intake and waits for queued effects, up to ctx
func (d *AsyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		if d.cancel != nil {
			d.cancel()
		}
		return nil
	case <-ctx.Done():
		if d.cancel != nil {
			d.cancel()
		}
		return fmt.Errorf("side effect drain interrupted: %w", ctx.Err())
	}
}

// EffectFactory builds the post-commit effects for lifecycle changes
type EffectFactory struct {
	resources repository.ResourceRepository
	events    repository.EventRepository
	audits    repository.AuditRepository
}

// NewEffectFactory creates an effect factory
func NewEffectFactory(resources repository.ResourceRepository, events repository.EventRepository, audits repository.AuditRepository) *EffectFactory {
	return &EffectFactory{resources: resources, events: events, audits: audits}
}

// ForCreate returns the effects of a newly created booking
func (f *EffectFactory) ForCreate(b *entity.Booking, actor string, now time.Time) []Effect {
	return []Effect{
		f.resourceEffect(b, entity.ResourceBooked),
		f.eventEffect(b, entity.TopicBookingCreated, now),
		f.auditEffect(&entity.AuditRecord{
			BookingID:     b.ID,
			BookingNumber: b.Number,
			Action:        entity.AuditCreate,
			ToStatus:      b.Status(),
			Actor:         actor,
			Version:       b.Version,
			At:            now,
		}),
	}
}

// ForTransition returns the effects of a committed transition. The audit
// effect is omitted when withAudit is false.
func (f *EffectFactory) ForTransition(res *TransitionResult, actor string, now time.Time, withAudit bool) []Effect {
	b := res.Booking
	var effects []Effect
	if res.ResourceStatus != "" {
		effects = append(effects, f.resourceEffect(b, res.ResourceStatus))
	}
	if res.Topic != "" {
		effects = append(effects, f.eventEffect(b, res.Topic, now))
	}
	if withAudit {
		effects = append(effects, f.auditEffect(TransitionAudit(res, actor, now)))
	}
	return effects
}

// AuditOnly wraps a single audit record as an effect
func (f *EffectFactory) AuditOnly(rec *entity.AuditRecord) []Effect {
	return []Effect{f.auditEffect(rec)}
}

// TransitionAudit converts a committed transition into an audit record
func TransitionAudit(res *TransitionResult, actor string, now time.Time) *entity.AuditRecord {
	b := res.Booking
	return &entity.AuditRecord{
		BookingID:     b.ID,
		BookingNumber: b.Number,
		Action:        string(res.Action),
		FromStatus:    res.From,
		ToStatus:      b.Status(),
		Actor:         actor,
		Reason:        res.Reason,
		Version:       b.Version,
		At:            now,
	}
}

func (f *EffectFactory) resourceEffect(b *entity.Booking, status entity.ResourceStatus) Effect {
	resourceID := b.ResourceID
	return Effect{
		Kind:      EffectResourceStatus,
		BookingID: b.ID,
		Run: func(ctx context.Context) error {
			return f.resources.UpdateStatus(ctx, resourceID, status)
		},
	}
}

func (f *EffectFactory) eventEffect(b *entity.Booking, topic string, now time.Time) Effect {
	payload := entity.NewBookingEvent(topic, b, now)
	return Effect{
		Kind:      EffectEvent,
		BookingID: b.ID,
		Run: func(ctx context.Context) error {
			return f.events.Publish(ctx, topic, payload)
		},
	}
}

func (f *EffectFactory) auditEffect(rec *entity.AuditRecord) Effect {
	return Effect{
		Kind:      EffectAudit,
		BookingID: rec.BookingID,
		Run: func(ctx context.Context) error {
			return f.audits.Append(ctx, rec)
		},
	}
}
