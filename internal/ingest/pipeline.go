// Package ingest runs the submission pipeline: validate, persist with
// bounded retries, then hand the record to the broadcaster. Every submission
// resolves to an outcome message regardless of what failed along the way.
package ingest

import (
	"context"
	"time"

	"github.com/Kushchii/sse-service/internal/broadcast"
	"github.com/Kushchii/sse-service/internal/store"
	"github.com/Kushchii/sse-service/internal/telemetry"
	"github.com/Kushchii/sse-service/internal/transaction"
	"github.com/Kushchii/sse-service/pkg/log"
)

// Pipeline accepts transaction submissions and drives them to durability
// and broadcast. Safe for concurrent use.
type Pipeline struct {
	st     store.Store
	bus    broadcast.Broadcaster
	policy RetryPolicy
	logger log.Logger
	obs    telemetry.Observer

	// sleep is swappable in tests so retries don't wait wall-clock time.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a pipeline over the given store and broadcaster.
func New(st store.Store, bus broadcast.Broadcaster, policy RetryPolicy, logger log.Logger, obs telemetry.Observer) *Pipeline {
	if logger == nil {
		logger = log.Discard()
	}
	if obs == nil {
		obs = telemetry.Noop{}
	}
	if policy.MaxAttempts <= 0 {
		policy = ExponentialPolicy()
	}
	return &Pipeline{
		st:     st,
		bus:    bus,
		policy: policy,
		logger: logger.With(log.Component("ingest")),
		obs:    obs,
		sleep:  sleepCtx,
	}
}

// Submit processes one transaction submission and always returns an outcome.
// The broadcast happens synchronously after the save succeeds, so a caller
// that receives a success outcome knows live subscribers have been offered
// the record.
func (p *Pipeline) Submit(ctx context.Context, req *transaction.Request) transaction.Outcome {
	if err := req.Validate(); err != nil {
		p.logger.Warn("submission rejected",
			log.Str("transaction_id", req.ID),
			log.Err(err))
		p.obs.OnSubmitFailed("validation")
		return transaction.RejectedOutcome(err)
	}

	rec := req.ToRecord()

	saved, err := p.saveWithRetry(ctx, rec)
	if err != nil {
		p.logger.Error("submission failed",
			log.Str("transaction_id", rec.ID),
			log.Err(err))
		return transaction.FailureOutcome()
	}

	p.obs.OnPersisted(saved)

	if err := p.bus.Publish(ctx, saved); err != nil {
		// The record is durable; a closed broadcaster only means no live
		// delivery. Replay and lookup still see it.
		p.logger.Warn("publish after save failed",
			log.Str("transaction_id", saved.ID),
			log.Err(err))
	}

	return transaction.SuccessOutcome()
}

func (p *Pipeline) saveWithRetry(ctx context.Context, rec *transaction.Record) (*transaction.Record, error) {
	var lastErr error
	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		saved, err := p.st.Save(ctx, rec)
		if err == nil {
			if attempt > 1 {
				p.logger.Info("save succeeded after retry",
					log.Str("transaction_id", rec.ID),
					log.Int("attempt", attempt))
			}
			return saved, nil
		}
		lastErr = err

		if !store.IsTransient(err) {
			p.obs.OnSubmitFailed("store_fatal")
			return nil, err
		}
		if attempt == p.policy.MaxAttempts {
			break
		}

		delay := p.policy.Delay(attempt)
		p.logger.Warn("transient save failure, retrying",
			log.Str("transaction_id", rec.ID),
			log.Int("attempt", attempt),
			log.Dur("delay", delay),
			log.Err(err))
		if err := p.sleep(ctx, delay); err != nil {
			p.obs.OnSubmitFailed("cancelled")
			return nil, err
		}
	}

	p.obs.OnSubmitFailed("store_exhausted")
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
