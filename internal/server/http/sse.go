package httpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Kushchii/sse-service/internal/broadcast"
	"github.com/Kushchii/sse-service/internal/transaction"
	"github.com/Kushchii/sse-service/pkg/log"
)

// sseSink writes records as Server-Sent Events.
//
// Each record is JSON-encoded and sent with the "data: " prefix followed by
// two newlines as required by the SSE wire format.
type sseSink struct {
	w http.ResponseWriter
}

func (s sseSink) Send(rec *transaction.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return nil
}

// Flush flushes the response writer so the event reaches the client
// immediately instead of sitting in a buffer.
func (s sseSink) Flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) handleStreamReplay(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, s.bus.SubscribeReplay)
}

func (s *Server) handleStreamLive(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, s.bus.SubscribeLive)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, subscribe func(context.Context) (*broadcast.Subscription, error)) {
	filter, err := newRecordFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid filter: " + err.Error()})
		return
	}

	sub, err := subscribe(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "stream unavailable"})
		return
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	sink := sseSink{w: w}
	sink.Flush()

	for {
		select {
		case rec, ok := <-sub.C():
			if !ok {
				return
			}
			if !filter.Eval(rec) {
				continue
			}
			if err := sink.Send(rec); err != nil {
				// A write error means the client is gone or the record could
				// not be serialized. Either way the stream is over.
				sub.Fail(err)
				s.logger.Debug("sse write failed", log.Err(err))
				return
			}
			sink.Flush()
		case <-sub.Done():
			return
		}
	}
}
