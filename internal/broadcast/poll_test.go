package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	pebblestore "github.com/Kushchii/sse-service/internal/storage/pebble"
	"github.com/Kushchii/sse-service/internal/store"
	"github.com/Kushchii/sse-service/internal/transaction"
	"github.com/Kushchii/sse-service/pkg/log"
)

func newPollForTest(t *testing.T) (Broadcaster, *store.PebbleStore, *testObs) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	st, err := store.OpenPebble(db, log.Discard())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	obs := &testObs{}
	b, err := New(Config{Strategy: StrategyPoll, BufferSize: 100, PollInterval: 50 * time.Millisecond}, st, log.Discard(), obs)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b, st, obs
}

func saveRec(t *testing.T, st *store.PebbleStore, status string) *transaction.Record {
	t.Helper()
	rec, err := st.Save(context.Background(), &transaction.Record{ID: uuid.NewString(), Status: status})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return rec
}

func TestPollReplayDeliversStoreContents(t *testing.T) {
	b, st, _ := newPollForTest(t)
	ctx := context.Background()

	var saved []*transaction.Record
	for i := 0; i < 3; i++ {
		saved = append(saved, saveRec(t, st, "CREATED"))
	}

	sub, err := b.SubscribeReplay(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	for i := 0; i < 3; i++ {
		rec := recvOne(t, sub)
		if rec.ID != saved[i].ID {
			t.Fatalf("position %d: got %s want %s", i, rec.ID, saved[i].ID)
		}
	}

	// continues live on subsequent ticks
	later := saveRec(t, st, "CREATED")
	if rec := recvOne(t, sub); rec.ID != later.ID {
		t.Fatalf("expected %s after tick, got %s", later.ID, rec.ID)
	}
}

func TestPollLiveSkipsExistingRecords(t *testing.T) {
	b, st, _ := newPollForTest(t)
	ctx := context.Background()

	saveRec(t, st, "OLD")
	saveRec(t, st, "OLD")

	sub, err := b.SubscribeLive(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	time.Sleep(10 * time.Millisecond)
	fresh := saveRec(t, st, "NEW")
	rec := recvOne(t, sub)
	if rec.ID != fresh.ID || rec.Status != "NEW" {
		t.Fatalf("live stream leaked history: %+v", rec)
	}
}

func TestPollCursorYieldsNoDuplicates(t *testing.T) {
	b, st, _ := newPollForTest(t)
	ctx := context.Background()

	sub, err := b.SubscribeReplay(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	const total = 10
	for i := 0; i < total; i++ {
		saveRec(t, st, "CREATED")
	}

	seen := map[string]bool{}
	var prev time.Time
	for i := 0; i < total; i++ {
		rec := recvOne(t, sub)
		if seen[rec.ID] {
			t.Fatalf("record %s delivered twice across ticks", rec.ID)
		}
		seen[rec.ID] = true
		if rec.CreatedAt.Before(prev) {
			t.Fatalf("order broken at %d", i)
		}
		prev = rec.CreatedAt
	}

	// several more idle ticks must not re-deliver anything
	select {
	case rec, ok := <-sub.C():
		if ok {
			t.Fatalf("unexpected re-delivery of %s", rec.ID)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPollPublishIsAcknowledgedOnly(t *testing.T) {
	b, _, obs := newPollForTest(t)
	if err := b.Publish(context.Background(), makeRec(0, time.Now())); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := obs.published.Load(); got != 1 {
		t.Fatalf("published = %d, want 1", got)
	}
}

func TestPollCancelStopsPump(t *testing.T) {
	b, st, obs := newPollForTest(t)
	sub, err := b.SubscribeReplay(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Cancel()
	waitClosed(t, sub)
	if got := obs.cancelled.Load(); got != 1 {
		t.Fatalf("cancelled = %d, want 1", got)
	}
	// further saves must not resurrect the stream
	saveRec(t, st, "CREATED")
	time.Sleep(120 * time.Millisecond)
	if sub.State() != StateCancelled {
		t.Fatalf("state = %v", sub.State())
	}
}
