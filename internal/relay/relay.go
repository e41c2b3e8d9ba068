// Package relay forwards broadcast transactions to a Redis stream so
// downstream consumers outside this process can tail the same feed.
package relay

import (
	"context"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/Kushchii/sse-service/internal/broadcast"
	"github.com/Kushchii/sse-service/internal/transaction"
	"github.com/Kushchii/sse-service/pkg/log"
)

// DefaultStream is the Redis stream key used when none is configured.
const DefaultStream = "transactions:events"

// Relay tails a live subscription and appends every record to a Redis
// stream with XADD. Forwarding is best effort: a failed append is logged
// and skipped, it never stalls the subscription.
type Relay struct {
	client rueidis.Client
	stream string
	bus    broadcast.Broadcaster
	logger log.Logger
}

// New builds a relay over the given client and broadcaster.
func New(client rueidis.Client, stream string, bus broadcast.Broadcaster, logger log.Logger) *Relay {
	if stream == "" {
		stream = DefaultStream
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Relay{
		client: client,
		stream: stream,
		bus:    bus,
		logger: logger.With(log.Component("relay")),
	}
}

// Run subscribes live and forwards until ctx is cancelled or the
// subscription ends. It blocks; run it on its own goroutine.
func (r *Relay) Run(ctx context.Context) error {
	sub, err := r.bus.SubscribeLive(ctx)
	if err != nil {
		return err
	}
	defer sub.Cancel()

	r.logger.Info("relay started", log.Str("stream", r.stream))
	for {
		select {
		case rec, ok := <-sub.C():
			if !ok {
				return sub.Err()
			}
			r.forward(ctx, rec)
		case <-sub.Done():
			return sub.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Relay) forward(ctx context.Context, rec *transaction.Record) {
	pairs := streamFields(rec)
	fv := r.client.B().Xadd().Key(r.stream).Id("*").FieldValue()
	for i := 0; i < len(pairs); i += 2 {
		fv = fv.FieldValue(pairs[i], pairs[i+1])
	}
	if err := r.client.Do(ctx, fv.Build()).Error(); err != nil {
		r.logger.Warn("xadd failed",
			log.Str("transaction_id", rec.ID),
			log.Err(err))
	}
}

// streamFields flattens a record into XADD field-value pairs.
func streamFields(rec *transaction.Record) []string {
	return []string{
		"transaction_id", rec.ID,
		"user_id", rec.UserID,
		"amount", strconv.FormatFloat(rec.Amount, 'f', -1, 64),
		"currency", rec.Currency,
		"status", rec.Status,
		"description", rec.Description,
		"created_at_ms", strconv.FormatInt(rec.CreatedAt.UnixMilli(), 10),
	}
}
