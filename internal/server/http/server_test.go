package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Kushchii/sse-service/internal/broadcast"
	"github.com/Kushchii/sse-service/internal/ingest"
	"github.com/Kushchii/sse-service/internal/store"
	pebblestore "github.com/Kushchii/sse-service/internal/storage/pebble"
	"github.com/Kushchii/sse-service/internal/transaction"
	"github.com/Kushchii/sse-service/pkg/log"
)

func newTestServer(t *testing.T, strategy broadcast.Strategy) *httptest.Server {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	st, err := store.OpenPebble(db, log.Discard())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	bus, err := broadcast.New(broadcast.Config{Strategy: strategy, BufferSize: 16, PollInterval: 50 * time.Millisecond}, st, log.Discard(), nil)
	if err != nil {
		t.Fatalf("new broadcaster: %v", err)
	}
	pipe := ingest.New(st, bus, ingest.RetryPolicy{Shape: ingest.BackoffExp, MaxAttempts: 2, BaseDelay: time.Millisecond}, log.Discard(), nil)
	s := New(Options{Pipeline: pipe, Bus: bus, Store: st, Logger: log.Discard()})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = bus.Close()
		_ = st.Close()
		_ = db.Close()
	})
	return ts
}

func submitTx(t *testing.T, ts *httptest.Server, id, status string, amount float64) transaction.Outcome {
	t.Helper()
	body := fmt.Sprintf(`{"id":%q,"userId":"user-1","amount":%g,"currency":"USD","status":%q,"description":"test"}`, id, amount, status)
	resp, err := http.Post(ts.URL+"/v1/transactions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status = %d, want 200", resp.StatusCode)
	}
	var out transaction.Outcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	return out
}

// sseStream reads data events off an open SSE response.
type sseStream struct {
	resp   *http.Response
	rd     *bufio.Reader
	cancel context.CancelFunc
}

func openStream(t *testing.T, ts *httptest.Server, path string) *sseStream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+path, nil)
	if err != nil {
		cancel()
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("open stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		t.Fatalf("stream status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}
	st := &sseStream{resp: resp, rd: bufio.NewReader(resp.Body), cancel: cancel}
	t.Cleanup(st.close)
	return st
}

func (s *sseStream) close() {
	s.cancel()
	s.resp.Body.Close()
}

// next blocks until one data event arrives and returns the decoded record.
func (s *sseStream) next(t *testing.T) *transaction.Record {
	t.Helper()
	type result struct {
		rec *transaction.Record
		err error
	}
	ch := make(chan result, 1)
	go func() {
		for {
			line, err := s.rd.ReadString('\n')
			if err != nil {
				ch <- result{err: err}
				return
			}
			line = strings.TrimRight(line, "\n")
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var rec transaction.Record
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &rec); err != nil {
				ch <- result{err: err}
				return
			}
			ch <- result{rec: &rec}
			return
		}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("read event: %v", r.err)
		}
		return r.rec
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for SSE event")
		return nil
	}
}

const (
	idA = "11111111-1111-4111-8111-111111111111"
	idB = "22222222-2222-4222-8222-222222222222"
	idC = "33333333-3333-4333-8333-333333333333"
)

func TestSubmitAndFetch(t *testing.T) {
	ts := newTestServer(t, broadcast.StrategyReplayLog)

	out := submitTx(t, ts, idA, "completed", 42.5)
	if !out.Success || out.Message != transaction.MsgProcessed {
		t.Fatalf("outcome = %+v", out)
	}

	resp, err := http.Get(ts.URL + "/v1/transactions/" + idA)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp.StatusCode)
	}
	var rec transaction.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.ID != idA || rec.Amount != 42.5 || rec.CreatedAt.IsZero() {
		t.Fatalf("record = %+v", rec)
	}
}

func TestFetchUnknownIs404(t *testing.T) {
	ts := newTestServer(t, broadcast.StrategyReplayLog)
	resp, err := http.Get(ts.URL + "/v1/transactions/" + idC)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSubmitValidationIs400(t *testing.T) {
	ts := newTestServer(t, broadcast.StrategyReplayLog)
	body := `{"id":"t9","userId":"u","amount":1,"currency":"USD","status":""}`
	resp, err := http.Post(ts.URL+"/v1/transactions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var out transaction.Outcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Success {
		t.Fatalf("outcome = %+v, want rejection", out)
	}
}

func TestPlainIdentifiersAccepted(t *testing.T) {
	ts := newTestServer(t, broadcast.StrategyReplayLog)

	out := submitTx(t, ts, "t1", "CREATED", 10)
	if !out.Success || out.Message != transaction.MsgProcessed {
		t.Fatalf("outcome = %+v", out)
	}

	st := openStream(t, ts, "/v1/transactions/stream")
	if got := st.next(t); got.ID != "t1" {
		t.Fatalf("first replayed event = %s, want t1", got.ID)
	}
}

func TestReplayStreamDeliversHistoryThenLive(t *testing.T) {
	ts := newTestServer(t, broadcast.StrategyReplayLog)

	submitTx(t, ts, idA, "completed", 1)
	submitTx(t, ts, idB, "pending", 2)

	st := openStream(t, ts, "/v1/transactions/stream")
	if got := st.next(t); got.ID != idA {
		t.Fatalf("first event = %s, want %s", got.ID, idA)
	}
	if got := st.next(t); got.ID != idB {
		t.Fatalf("second event = %s, want %s", got.ID, idB)
	}

	submitTx(t, ts, idC, "completed", 3)
	if got := st.next(t); got.ID != idC {
		t.Fatalf("live event = %s, want %s", got.ID, idC)
	}
}

func TestNewStreamSkipsHistory(t *testing.T) {
	ts := newTestServer(t, broadcast.StrategyReplayLog)

	submitTx(t, ts, idA, "completed", 1)

	// Response headers arrive only after the subscription is registered, so
	// a submit after openStream returns is guaranteed to be live.
	st := openStream(t, ts, "/v1/transactions/stream/new")
	submitTx(t, ts, idB, "pending", 2)
	if got := st.next(t); got.ID != idB {
		t.Fatalf("event = %s, want %s (history must be skipped)", got.ID, idB)
	}
}

func TestStreamFilter(t *testing.T) {
	ts := newTestServer(t, broadcast.StrategyReplayLog)

	submitTx(t, ts, idA, "completed", 10)
	submitTx(t, ts, idB, "failed", 20)

	st := openStream(t, ts, "/v1/transactions/stream?filter=status+%3D%3D+%27failed%27")
	if got := st.next(t); got.ID != idB {
		t.Fatalf("filtered event = %s, want %s", got.ID, idB)
	}
}

func TestStreamInvalidFilterIs400(t *testing.T) {
	ts := newTestServer(t, broadcast.StrategyReplayLog)
	resp, err := http.Get(ts.URL + "/v1/transactions/stream?filter=%28%28")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestIndependentSubscribers(t *testing.T) {
	ts := newTestServer(t, broadcast.StrategyReplayLog)

	submitTx(t, ts, idA, "completed", 1)

	replay := openStream(t, ts, "/v1/transactions/stream")
	live := openStream(t, ts, "/v1/transactions/stream/new")

	if got := replay.next(t); got.ID != idA {
		t.Fatalf("replay first = %s, want %s", got.ID, idA)
	}

	submitTx(t, ts, idB, "pending", 2)
	if got := replay.next(t); got.ID != idB {
		t.Fatalf("replay live = %s, want %s", got.ID, idB)
	}
	if got := live.next(t); got.ID != idB {
		t.Fatalf("live = %s, want %s", got.ID, idB)
	}
}

func TestDisconnectCancelsSubscription(t *testing.T) {
	ts := newTestServer(t, broadcast.StrategyReplayLog)

	st := openStream(t, ts, "/v1/transactions/stream/new")
	st.close()

	// The server keeps accepting submissions after a subscriber drops.
	time.Sleep(100 * time.Millisecond)
	out := submitTx(t, ts, idA, "completed", 1)
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, broadcast.StrategyReplayLog)
	resp, err := http.Get(ts.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPollStrategyEndToEnd(t *testing.T) {
	ts := newTestServer(t, broadcast.StrategyPoll)

	submitTx(t, ts, idA, "completed", 1)

	st := openStream(t, ts, "/v1/transactions/stream")
	if got := st.next(t); got.ID != idA {
		t.Fatalf("replayed event = %s, want %s", got.ID, idA)
	}

	submitTx(t, ts, idB, "pending", 2)
	if got := st.next(t); got.ID != idB {
		t.Fatalf("polled event = %s, want %s", got.ID, idB)
	}
}
