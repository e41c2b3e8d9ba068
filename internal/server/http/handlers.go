package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Kushchii/sse-service/internal/store"
	"github.com/Kushchii/sse-service/internal/transaction"
	"github.com/Kushchii/sse-service/pkg/log"
)

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req transaction.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, transaction.Outcome{Success: false, Message: "malformed request body"})
		return
	}
	// Validation failures are the client's fault and map to 400. The pipeline
	// handles everything after that and always yields a 200 outcome.
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, transaction.RejectedOutcome(err))
		return
	}
	out := s.pipeline.Submit(r.Context(), &req)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.st.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "transaction not found"})
			return
		}
		s.logger.Error("lookup failed", log.Str("transaction_id", id), log.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// An empty range read is a cheap probe of the store's read path.
	if _, err := s.st.FindCreatedSince(r.Context(), time.Now()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
