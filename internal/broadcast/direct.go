package broadcast

import (
	"context"
	"fmt"
	"sync"

	"github.com/Kushchii/sse-service/internal/telemetry"
	"github.com/Kushchii/sse-service/internal/transaction"
	"github.com/Kushchii/sse-service/pkg/log"
)

// direct multicasts records straight onto each subscriber's buffered channel
// with best-effort, non-blocking emission. A subscriber whose buffer is full
// is skipped for that record; the loss is logged and counted. There is no
// replay: a replay subscription degrades to live-only from now.
type direct struct {
	cfg    Config
	logger log.Logger
	obs    telemetry.Observer

	mu         sync.Mutex
	subs       map[*Subscription]struct{}
	closed     bool
	nextID     int
	warnedOnce bool
}

func newDirect(cfg Config, logger log.Logger, obs telemetry.Observer) *direct {
	return &direct{cfg: cfg, logger: logger, obs: obs, subs: map[*Subscription]struct{}{}}
}

// Publish offers the record to every attached subscriber without blocking.
func (b *direct) Publish(ctx context.Context, rec *transaction.Record) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	for sub := range b.subs {
		select {
		case sub.out <- rec:
		default:
			b.obs.OnDropped(sub.Name(), rec)
			b.logger.Warn("subscriber not ready, skipping record",
				log.Str("subscription", sub.Name()), log.Str("id", rec.ID))
		}
	}
	b.mu.Unlock()
	b.obs.OnPublished(rec)
	return nil
}

// SubscribeReplay degrades to a live-only stream under the direct strategy.
func (b *direct) SubscribeReplay(ctx context.Context) (*Subscription, error) {
	b.mu.Lock()
	warned := b.warnedOnce
	b.warnedOnce = true
	b.mu.Unlock()
	if !warned {
		b.logger.Warn("direct strategy has no replay; serving live only from now")
	}
	return b.subscribe(ctx, "replay")
}

// SubscribeLive opens a stream of records published after attach.
func (b *direct) SubscribeLive(ctx context.Context) (*Subscription, error) {
	return b.subscribe(ctx, "live")
}

func (b *direct) subscribe(ctx context.Context, kind string) (*Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.nextID++
	name := fmt.Sprintf("%s-%d", kind, b.nextID)
	var sub *Subscription
	sub = newSubscription(name, b.cfg.BufferSize, func() { b.unregister(sub) })
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	b.obs.OnSubscribed(name)
	watchContext(ctx, sub)
	sub.activate()
	b.logger.Info("subscription attached", log.Str("subscription", name), log.Str("strategy", string(StrategyDirect)))
	return sub, nil
}

// unregister removes the subscriber and closes its channel. Closing under the
// engine lock keeps it ordered against in-flight publishes.
func (b *direct) unregister(sub *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.out)
	}
	b.mu.Unlock()
	b.obs.OnCancelled(sub.Name())
	b.logger.Info("subscription detached", log.Str("subscription", sub.Name()))
}

// Close cancels all subscriptions and rejects further publishes.
func (b *direct) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	return nil
}
