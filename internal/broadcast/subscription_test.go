package broadcast

import (
	"errors"
	"testing"
)

func TestSubscriptionStates(t *testing.T) {
	sub := newSubscription("live-1", 0, nil)
	if sub.State() != StateAttaching {
		t.Fatalf("initial state = %v", sub.State())
	}
	sub.activate()
	if sub.State() != StateActive {
		t.Fatalf("after activate = %v", sub.State())
	}
	sub.Cancel()
	if sub.State() != StateCancelled {
		t.Fatalf("after cancel = %v", sub.State())
	}
	select {
	case <-sub.Done():
	default:
		t.Fatalf("done not closed after cancel")
	}
}

func TestSubscriptionFailRecordsError(t *testing.T) {
	var unregistered bool
	var sub *Subscription
	sub = newSubscription("live-2", 0, func() { unregistered = true })
	sub.activate()

	cause := errors.New("encode record")
	sub.Fail(cause)
	if sub.State() != StateErrored {
		t.Fatalf("state = %v, want errored", sub.State())
	}
	if !errors.Is(sub.Err(), cause) {
		t.Fatalf("err = %v", sub.Err())
	}
	if !unregistered {
		t.Fatalf("fail must unregister the subscription")
	}

	// terminal transitions do not overwrite each other
	sub.Cancel()
	if sub.State() != StateErrored {
		t.Fatalf("cancel after fail changed state to %v", sub.State())
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{"direct", "replay-log", "poll"} {
		if _, err := ParseStrategy(s); err != nil {
			t.Fatalf("%s: %v", s, err)
		}
	}
	if _, err := ParseStrategy("multicast"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}
