package httpserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/Kushchii/sse-service/internal/broadcast"
	"github.com/Kushchii/sse-service/internal/ingest"
	"github.com/Kushchii/sse-service/internal/store"
	"github.com/Kushchii/sse-service/pkg/log"
)

// Options carries the collaborators the server routes requests to.
// Metrics is optional; when nil the /metrics route is not registered.
type Options struct {
	Pipeline *ingest.Pipeline
	Bus      broadcast.Broadcaster
	Store    store.Store
	Logger   log.Logger
	Metrics  http.Handler
}

type Server struct {
	pipeline *ingest.Pipeline
	bus      broadcast.Broadcaster
	st       store.Store
	logger   log.Logger
	srv      *http.Server
	lis      net.Listener
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	mux := http.NewServeMux()
	s := &Server{
		pipeline: opts.Pipeline,
		bus:      opts.Bus,
		st:       opts.Store,
		logger:   logger.With(log.Component("http")),
		srv:      &http.Server{Handler: cors(mux)},
	}
	mux.HandleFunc("POST /v1/transactions", s.handleSubmit)
	mux.HandleFunc("GET /v1/transactions/stream", s.handleStreamReplay)
	mux.HandleFunc("GET /v1/transactions/stream/new", s.handleStreamLive)
	mux.HandleFunc("GET /v1/transactions/{id}", s.handleGet)
	mux.HandleFunc("GET /v1/healthz", s.handleHealth)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	return s
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http server listening", log.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

// Handler returns the root handler, used by tests to serve via httptest.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
