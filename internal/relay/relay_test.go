package relay

import (
	"testing"
	"time"

	"github.com/Kushchii/sse-service/internal/transaction"
)

func TestStreamFields(t *testing.T) {
	created := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	rec := &transaction.Record{
		ID:          "6f1c1b62-61a7-4b4e-9f0e-46cbae4fbc31",
		UserID:      "user-7",
		Amount:      19.99,
		Currency:    "EUR",
		Status:      "pending",
		Description: "subscription renewal",
		CreatedAt:   created,
	}

	pairs := streamFields(rec)
	if len(pairs)%2 != 0 {
		t.Fatalf("streamFields returned %d values, want an even count", len(pairs))
	}

	got := map[string]string{}
	for i := 0; i < len(pairs); i += 2 {
		got[pairs[i]] = pairs[i+1]
	}

	want := map[string]string{
		"transaction_id": rec.ID,
		"user_id":        "user-7",
		"amount":         "19.99",
		"currency":       "EUR",
		"status":         "pending",
		"description":    "subscription renewal",
		"created_at_ms":  "1741944413589",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("field %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	r := New(nil, "", nil, nil)
	if r.stream != DefaultStream {
		t.Fatalf("stream = %q, want %q", r.stream, DefaultStream)
	}
	if r.logger == nil {
		t.Fatal("logger not defaulted")
	}
}
