package telemetry

import (
	"github.com/Kushchii/sse-service/internal/transaction"
)

// Observer receives lifecycle events from the ingest pipeline and the
// distribution engine. Implementations must be safe for concurrent use and
// must not block.
type Observer interface {
	// OnPersisted fires after the store confirms a record.
	OnPersisted(rec *transaction.Record)
	// OnPublished fires after a record is handed to the distribution engine.
	OnPublished(rec *transaction.Record)
	// OnDropped fires when a subscriber's backpressure policy discards a record.
	OnDropped(subscriber string, rec *transaction.Record)
	// OnSubscribed and OnCancelled track subscription lifecycle.
	OnSubscribed(subscriber string)
	OnCancelled(subscriber string)
	// OnSubmitFailed fires when a submission ends in a failure outcome.
	OnSubmitFailed(reason string)
}

// Noop discards every event.
type Noop struct{}

func (Noop) OnPersisted(*transaction.Record)         {}
func (Noop) OnPublished(*transaction.Record)         {}
func (Noop) OnDropped(string, *transaction.Record)   {}
func (Noop) OnSubscribed(string)                     {}
func (Noop) OnCancelled(string)                      {}
func (Noop) OnSubmitFailed(string)                   {}
