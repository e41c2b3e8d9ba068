package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/Kushchii/sse-service/pkg/log"
)

func newDirectForTest(t *testing.T, bufSize int) (*direct, *testObs) {
	t.Helper()
	obs := &testObs{}
	b, err := New(Config{Strategy: StrategyDirect, BufferSize: bufSize}, nil, log.Discard(), obs)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b.(*direct), obs
}

func TestDirectDeliversToAttachedSubscribers(t *testing.T) {
	b, _ := newDirectForTest(t, 10)
	ctx := context.Background()

	// published before anyone attached, so nobody receives it
	if err := b.Publish(ctx, makeRec(0, time.Now())); err != nil {
		t.Fatalf("publish without subscribers: %v", err)
	}

	sub, err := b.SubscribeLive(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	for i := 1; i <= 3; i++ {
		if err := b.Publish(ctx, makeRec(i, time.Now())); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	for i := 1; i <= 3; i++ {
		if rec := recvOne(t, sub); rec.Seq != uint64(i+1) {
			t.Fatalf("order broken at %d: seq %d", i, rec.Seq)
		}
	}
}

func TestDirectReplayDegradesToLive(t *testing.T) {
	b, _ := newDirectForTest(t, 10)
	ctx := context.Background()

	if err := b.Publish(ctx, makeRec(0, time.Now().Add(-time.Minute))); err != nil {
		t.Fatalf("publish: %v", err)
	}
	sub, err := b.SubscribeReplay(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	if err := b.Publish(ctx, makeRec(1, time.Now())); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// only the record published after attach arrives
	if rec := recvOne(t, sub); rec.Seq != 2 {
		t.Fatalf("expected live-only delivery, got seq %d", rec.Seq)
	}
}

func TestDirectSkipsFullSubscriber(t *testing.T) {
	const bufSize = 2
	b, obs := newDirectForTest(t, bufSize)
	ctx := context.Background()

	stalled, err := b.SubscribeLive(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stalled.Cancel()
	healthy, err := b.SubscribeLive(ctx)
	if err != nil {
		t.Fatalf("subscribe healthy: %v", err)
	}
	defer healthy.Cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			recvOne(t, healthy)
		}
	}()

	for i := 0; i < 5; i++ {
		if err := b.Publish(ctx, makeRec(i, time.Now())); err != nil {
			t.Fatalf("publish: %v", err)
		}
		// pace the publisher so only the stalled subscriber overflows
		time.Sleep(20 * time.Millisecond)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("healthy subscriber starved by stalled peer")
	}

	// stalled subscriber kept the oldest bufSize records, overflow skipped
	if got := obs.dropped.Load(); got != 5-bufSize {
		t.Fatalf("dropped = %d, want %d", got, 5-bufSize)
	}
	for i := 0; i < bufSize; i++ {
		if rec := recvOne(t, stalled); rec.Seq != uint64(i+1) {
			t.Fatalf("kept record %d has seq %d", i, rec.Seq)
		}
	}
}

func TestDirectCancelClosesStream(t *testing.T) {
	b, obs := newDirectForTest(t, 10)
	sub, err := b.SubscribeLive(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Cancel()
	waitClosed(t, sub)
	if got := obs.cancelled.Load(); got != 1 {
		t.Fatalf("cancelled = %d, want 1", got)
	}
	if err := b.Publish(context.Background(), makeRec(0, time.Now())); err != nil {
		t.Fatalf("publish after cancel: %v", err)
	}
}
