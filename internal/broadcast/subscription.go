package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/Kushchii/sse-service/internal/transaction"
)

// State is the lifecycle phase of a subscription.
type State int32

const (
	StateAttaching State = iota
	StateActive
	StateCancelled
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateAttaching:
		return "attaching"
	case StateActive:
		return "active"
	case StateCancelled:
		return "cancelled"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Subscription is a per-consumer stream handle. Records are read from C()
// until it is closed; Cancel detaches the consumer and releases its
// resources. Cancel is safe to call from any goroutine, any number of times.
type Subscription struct {
	name string
	out  chan *transaction.Record
	done chan struct{}

	state    atomic.Int32
	errMu    sync.Mutex
	err      error
	cancelFn func()
	once     sync.Once
}

func newSubscription(name string, outCap int, cancelFn func()) *Subscription {
	return &Subscription{
		name:     name,
		out:      make(chan *transaction.Record, outCap),
		done:     make(chan struct{}),
		cancelFn: cancelFn,
	}
}

// Name identifies the subscription in logs and metrics.
func (s *Subscription) Name() string { return s.name }

// C returns the record stream. It is closed after Cancel or a terminal error.
func (s *Subscription) C() <-chan *transaction.Record { return s.out }

// Done is closed when the subscription leaves the active state.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle phase.
func (s *Subscription) State() State { return State(s.state.Load()) }

// Err returns the terminal error for an errored subscription, nil otherwise.
func (s *Subscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Cancel detaches the subscription. The stream channel is closed promptly by
// the owning engine; pending buffered records are discarded.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.state.Store(int32(StateCancelled))
		close(s.done)
		if s.cancelFn != nil {
			s.cancelFn()
		}
	})
}

func (s *Subscription) activate() {
	s.state.CompareAndSwap(int32(StateAttaching), int32(StateActive))
}

// Fail records a terminal delivery error (for example a serialization
// failure on the transport) and tears the subscription down. The fault is
// isolated to this subscription.
func (s *Subscription) Fail(err error) {
	s.once.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		s.state.Store(int32(StateErrored))
		close(s.done)
		if s.cancelFn != nil {
			s.cancelFn()
		}
	})
}
