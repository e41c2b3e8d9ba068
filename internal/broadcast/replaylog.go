package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Kushchii/sse-service/internal/telemetry"
	"github.com/Kushchii/sse-service/internal/transaction"
	"github.com/Kushchii/sse-service/pkg/log"
)

// logGrowthEvery controls how often the unbounded log reports its size.
const logGrowthEvery = 10000

// replayLog keeps one append-only ordered log with two views: replay walks
// the log from the start, live starts at the tail and filters by the
// subscription instant. Appends wake waiting pumps through a notify channel
// that is closed and recreated, so publishers never block on consumers.
type replayLog struct {
	cfg    Config
	logger log.Logger
	obs    telemetry.Observer

	mu      sync.Mutex
	entries []*transaction.Record
	index   map[string]struct{} // ids already in the log
	notify  chan struct{}
	closed  bool
	subs    map[*Subscription]struct{}
	nextID  int
}

func newReplayLog(cfg Config, logger log.Logger, obs telemetry.Observer) *replayLog {
	return &replayLog{
		cfg:    cfg,
		logger: logger,
		obs:    obs,
		index:  map[string]struct{}{},
		notify: make(chan struct{}),
		subs:   map[*Subscription]struct{}{},
	}
}

// Publish appends the record to the log and wakes every pump. A record whose
// identifier is already present is dropped idempotently: a duplicate publish
// never yields a second emission.
func (b *replayLog) Publish(ctx context.Context, rec *transaction.Record) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if _, dup := b.index[rec.ID]; dup {
		b.mu.Unlock()
		b.logger.Warn("duplicate publish ignored", log.Str("id", rec.ID))
		return nil
	}
	b.index[rec.ID] = struct{}{}
	b.entries = append(b.entries, rec)
	size := len(b.entries)
	close(b.notify)
	b.notify = make(chan struct{})
	b.mu.Unlock()

	if size%logGrowthEvery == 0 {
		b.logger.Info("replay log size", log.Int("records", size))
	}
	b.obs.OnPublished(rec)
	return nil
}

// SubscribeReplay opens a view over the whole log, continuing live.
func (b *replayLog) SubscribeReplay(ctx context.Context) (*Subscription, error) {
	// A replay view never evicts: its backlog is bounded by the log itself.
	return b.subscribe(ctx, "replay", 0, time.Time{}, 0)
}

// SubscribeLive opens a view over records created strictly after now.
func (b *replayLog) SubscribeLive(ctx context.Context) (*Subscription, error) {
	b.mu.Lock()
	tail := len(b.entries)
	b.mu.Unlock()
	return b.subscribe(ctx, "live", tail, time.Now(), b.cfg.BufferSize)
}

func (b *replayLog) subscribe(ctx context.Context, kind string, start int, cutoff time.Time, bufCap int) (*Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.nextID++
	name := fmt.Sprintf("%s-%d", kind, b.nextID)
	var sub *Subscription
	sub = newSubscription(name, 0, func() { b.unregister(sub) })
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	b.obs.OnSubscribed(name)
	go b.pump(sub, start, cutoff, bufCap)
	watchContext(ctx, sub)
	sub.activate()
	b.logger.Info("subscription attached", log.Str("subscription", name), log.Str("strategy", string(StrategyReplayLog)))
	return sub, nil
}

func (b *replayLog) unregister(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	b.obs.OnCancelled(sub.Name())
	b.logger.Info("subscription detached", log.Str("subscription", sub.Name()))
}

// pump drives one subscription: it collects new log entries into a local
// pending buffer and hands them to the consumer in order. The publisher is
// never waited on; a slow consumer only grows (and, for live views, evicts
// from) its own pending buffer.
func (b *replayLog) pump(sub *Subscription, cursor int, cutoff time.Time, bufCap int) {
	defer close(sub.out)
	var pending []*transaction.Record
	for {
		b.mu.Lock()
		for cursor < len(b.entries) {
			rec := b.entries[cursor]
			cursor++
			if !cutoff.IsZero() && !rec.CreatedAt.After(cutoff) {
				continue
			}
			if bufCap > 0 && len(pending) >= bufCap {
				evicted := pending[0]
				pending = pending[1:]
				b.obs.OnDropped(sub.Name(), evicted)
				b.logger.Warn("subscriber buffer full, evicting oldest",
					log.Str("subscription", sub.Name()), log.Str("id", evicted.ID))
			}
			pending = append(pending, rec)
		}
		notify := b.notify
		closed := b.closed
		b.mu.Unlock()

		if len(pending) == 0 {
			if closed {
				return
			}
			select {
			case <-notify:
				continue
			case <-sub.done:
				return
			}
		}

		select {
		case sub.out <- pending[0]:
			pending = pending[1:]
		case <-notify:
			// New entries arrived while the consumer was busy; collect them
			// first so eviction sees the full backlog.
		case <-sub.done:
			return
		}
	}
}

// Close cancels all subscriptions and rejects further publishes.
func (b *replayLog) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.notify)
	b.notify = make(chan struct{})
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

// watchContext cancels the subscription when ctx ends first.
func watchContext(ctx context.Context, sub *Subscription) {
	if ctx == nil || ctx.Done() == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			sub.Cancel()
		case <-sub.done:
		}
	}()
}
