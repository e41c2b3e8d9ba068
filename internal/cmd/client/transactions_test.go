package client

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Kushchii/sse-service/internal/transaction"
)

func TestSubmitCommandPrintsOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transactions" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req transaction.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ID == "" {
			t.Error("submit sent empty id")
		}
		_ = json.NewEncoder(w).Encode(transaction.SuccessOutcome())
	}))
	defer srv.Close()

	cmd := newSubmitCommand(func() string { return srv.URL })
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--user", "user-1", "--amount", "12.5"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), transaction.MsgProcessed) {
		t.Fatalf("expected outcome message in output, got: %s", buf.String())
	}
}

func TestGetCommandNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cmd := newGetCommand(func() string { return srv.URL })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"11111111-1111-4111-8111-111111111111"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for a missing transaction")
	}
}

func TestTailCommandPrintsEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(`data: {"id":"a","amount":1,"status":"completed"}` + "\n\n"))
		_, _ = w.Write([]byte(`data: {"id":"b","amount":2,"status":"pending"}` + "\n\n"))
	}))
	defer srv.Close()

	cmd := newTailCommand(func() string { return srv.URL })
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--limit", "2"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("printed %d lines, want 2: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"id":"a"`) || !strings.Contains(lines[1], `"id":"b"`) {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}
