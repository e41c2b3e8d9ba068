package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Kushchii/sse-service/internal/store"
	"github.com/Kushchii/sse-service/internal/telemetry"
	"github.com/Kushchii/sse-service/internal/transaction"
	"github.com/Kushchii/sse-service/pkg/log"
)

// poller synthesizes streams by periodically querying the record store for
// records created since a per-subscription cursor. Only the store is trusted
// as source of truth: Publish does not carry the record anywhere, and streams
// survive an engine restart at the cost of up-to-one-interval latency.
//
// The cursor tracks the last observed CreatedAt rather than recomputing a
// wall-clock window each tick, so scheduling pauses can neither skip records
// nor deliver them twice.
type poller struct {
	cfg    Config
	st     store.Store
	waiter appendWaiter
	logger log.Logger
	obs    telemetry.Observer

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	nextID int
}

// appendWaiter is the optional store capability of blocking until a save.
// Stores that provide it let idle pumps wake as soon as a record lands
// instead of sleeping out the poll interval.
type appendWaiter interface {
	WaitForAppend(timeout time.Duration) bool
}

func newPoller(cfg Config, st store.Store, logger log.Logger, obs telemetry.Observer) *poller {
	p := &poller{cfg: cfg, st: st, logger: logger, obs: obs, subs: map[*Subscription]struct{}{}}
	if w, ok := st.(appendWaiter); ok {
		p.waiter = w
	}
	return p
}

// Publish only acknowledges the logical publish; delivery happens from the
// store on the next tick of each subscription.
func (b *poller) Publish(ctx context.Context, rec *transaction.Record) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	b.obs.OnPublished(rec)
	return nil
}

// SubscribeReplay polls from the beginning of time.
func (b *poller) SubscribeReplay(ctx context.Context) (*Subscription, error) {
	return b.subscribe(ctx, "replay", time.Time{})
}

// SubscribeLive polls for records created strictly after now.
func (b *poller) SubscribeLive(ctx context.Context) (*Subscription, error) {
	return b.subscribe(ctx, "live", time.Now())
}

func (b *poller) subscribe(ctx context.Context, kind string, cursor time.Time) (*Subscription, error) {
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
	go b.pump(sub, cursor)
	watchContext(ctx, sub)
	sub.activate()
	b.logger.Info("subscription attached", log.Str("subscription", name), log.Str("strategy", string(StrategyPoll)))
	return sub, nil
}

func (b *poller) unregister(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	b.obs.OnCancelled(sub.Name())
	b.logger.Info("subscription detached", log.Str("subscription", sub.Name()))
}

// pump drives one subscription: each tick queries the store after the cursor
// and feeds a bounded pending buffer with latest-wins eviction. Transient
// store failures are logged and retried on the next tick; the stream itself
// never terminates on them.
func (b *poller) pump(sub *Subscription, cursor time.Time) {
	defer close(sub.out)
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	var pending []*transaction.Record
	var lastID string

	poll := func() {
		recs, err := b.st.FindCreatedSince(context.Background(), cursor)
		if err != nil {
			b.logger.Warn("poll failed", log.Str("subscription", sub.Name()), log.Err(err))
			return
		}
		for _, rec := range recs {
			if rec.ID == lastID {
				// consecutive duplicate, e.g. a store with coarse timestamps
				continue
			}
			cursor = rec.CreatedAt
			lastID = rec.ID
			if len(pending) >= b.cfg.BufferSize {
				evicted := pending[0]
				pending = pending[1:]
				b.obs.OnDropped(sub.Name(), evicted)
				b.logger.Warn("subscriber buffer full, keeping newest",
					log.Str("subscription", sub.Name()), log.Str("id", evicted.ID))
			}
			pending = append(pending, rec)
		}
	}

	// first poll happens immediately so replay does not wait a full interval
	poll()
	for {
		if len(pending) == 0 {
			if b.waiter != nil {
				b.waiter.WaitForAppend(b.cfg.PollInterval)
				select {
				case <-sub.done:
					return
				default:
				}
				poll()
				continue
			}
			select {
			case <-ticker.C:
				poll()
			case <-sub.done:
				return
			}
			continue
		}
		select {
		case sub.out <- pending[0]:
			pending = pending[1:]
		case <-ticker.C:
			poll()
		case <-sub.done:
			return
		}
	}
}

// Close cancels all subscriptions and rejects further publishes.
func (b *poller) Close() error {
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
