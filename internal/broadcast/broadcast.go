package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kushchii/sse-service/internal/store"
	"github.com/Kushchii/sse-service/internal/telemetry"
	"github.com/Kushchii/sse-service/internal/transaction"
	"github.com/Kushchii/sse-service/pkg/log"
)

// Strategy selects how published records reach subscribers.
type Strategy string

const (
	// StrategyDirect multicasts in memory with best-effort, non-blocking
	// emission. No replay; a full subscriber is skipped for that record.
	StrategyDirect Strategy = "direct"
	// StrategyReplayLog keeps one ordered in-memory log with two views:
	// replay walks it from the start, live filters by subscription time.
	StrategyReplayLog Strategy = "replay-log"
	// StrategyPoll synthesizes streams by periodically querying the record
	// store. Survives engine restarts at the cost of polling latency.
	StrategyPoll Strategy = "poll"
)

// ParseStrategy converts the config string form to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyDirect, StrategyReplayLog, StrategyPoll:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown delivery strategy %q", s)
	}
}

// Config tunes the engine.
type Config struct {
	Strategy Strategy
	// BufferSize bounds each subscriber's backpressure buffer.
	BufferSize int
	// PollInterval is the store query period for StrategyPoll.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Strategy == "" {
		c.Strategy = StrategyReplayLog
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	return c
}

// Broadcaster is the distribution engine: it accepts persisted records and
// fans them out to attached subscriptions. Publish never blocks on a slow
// subscriber; each subscription applies its own backpressure policy.
type Broadcaster interface {
	// Publish makes a persisted record visible to current and, depending on
	// the strategy, future subscribers.
	Publish(ctx context.Context, rec *transaction.Record) error
	// SubscribeReplay opens a stream beginning from the earliest known
	// record and continuing live.
	SubscribeReplay(ctx context.Context) (*Subscription, error)
	// SubscribeLive opens a stream of records created strictly after the
	// subscription instant.
	SubscribeLive(ctx context.Context) (*Subscription, error)
	// Close cancels every subscription and rejects further publishes.
	Close() error
}

// ErrClosed is returned by operations on a closed broadcaster.
var ErrClosed = errors.New("broadcaster closed")

// New builds the engine for the configured strategy. The store is only
// consulted by StrategyPoll; the other strategies receive records solely
// through Publish.
func New(cfg Config, st store.Store, logger log.Logger, obs telemetry.Observer) (Broadcaster, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.Discard()
	}
	if obs == nil {
		obs = telemetry.Noop{}
	}
	switch cfg.Strategy {
	case StrategyDirect:
		return newDirect(cfg, logger, obs), nil
	case StrategyReplayLog:
		return newReplayLog(cfg, logger, obs), nil
	case StrategyPoll:
		if st == nil {
			return nil, errors.New("poll strategy requires a record store")
		}
		return newPoller(cfg, st, logger, obs), nil
	default:
		return nil, fmt.Errorf("unknown delivery strategy %q", cfg.Strategy)
	}
}
