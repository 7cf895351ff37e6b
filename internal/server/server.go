// Package server exposes a store over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MikhailWahib/minicask/internal/config"
	"github.com/MikhailWahib/minicask/internal/dispatcher"
	"github.com/MikhailWahib/minicask/internal/engine"
	"github.com/MikhailWahib/minicask/internal/metrics"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// RequestIDHeader carries the id assigned to every request.
const RequestIDHeader = "X-Request-ID"

// Store is the subset of the database the API needs.
type Store interface {
	Get(key []byte) ([]byte, bool)
	Set(key, value []byte) error
	SetWithExpire(key, value []byte, deadline time.Time) error
	Delete(key []byte) error
	Clear() error
	Close() error
}

// Request is the JSON body accepted by the key routes. Deadline is in unix seconds.
type Request struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Deadline int64  `json:"deadline"`
}

// Response is the JSON body of every reply.
type Response struct {
	Status bool   `json:"status"`
	Data   string `json:"data"`
}

type Server struct {
	store  Store
	logger hclog.Logger
	http   *http.Server

	closeOnce sync.Once
	closed    chan struct{}
}

// New builds a server for store listening on cfg.ListenAddr.
func New(store Store, cfg *config.Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	s := &Server{
		store:  store,
		logger: logger.Named("http"),
		closed: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/key/get", s.post(s.handleGet))
	mux.HandleFunc("/key/set", s.post(s.handleSet))
	mux.HandleFunc("/key/set_with_expire", s.post(s.handleSetWithExpire))
	mux.HandleFunc("/key/delete", s.post(s.handleDelete))
	mux.HandleFunc("/key/clear", s.post(s.handleClear))
	mux.HandleFunc("/close", s.post(s.handleClose))
	if !cfg.DisableMetrics {
		mux.Handle("/metrics", metrics.Handler())
	}

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.withRequestID(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// CloseRequested is closed once a client has called /close, whether or not the store closed cleanly.
func (s *Server) CloseRequested() <-chan struct{} {
	return s.closed
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("listening", "addr", l.Addr().String())
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req Request)

func (s *Server) post(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			s.respond(w, r, http.StatusMethodNotAllowed, false, "method not allowed")
			return
		}

		// An empty body is allowed for routes that take no arguments.
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.logger.Debug("bad request body", "id", requestID(r), "error", err)
			s.respond(w, r, http.StatusBadRequest, false, "invalid json body")
			return
		}
		h(w, r, req)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, req Request) {
	value, ok := s.store.Get([]byte(req.Key))
	s.respond(w, r, http.StatusOK, ok, string(value))
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request, req Request) {
	s.result(w, r, s.store.Set([]byte(req.Key), []byte(req.Value)))
}

func (s *Server) handleSetWithExpire(w http.ResponseWriter, r *http.Request, req Request) {
	deadline := time.Unix(req.Deadline, 0)
	s.result(w, r, s.store.SetWithExpire([]byte(req.Key), []byte(req.Value), deadline))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, req Request) {
	s.result(w, r, s.store.Delete([]byte(req.Key)))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request, _ Request) {
	s.result(w, r, s.store.Clear())
}

// handleClose signals CloseRequested even when Close fails, since the store is
// unusable once Close has returned.
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request, _ Request) {
	err := s.store.Close()
	s.closeOnce.Do(func() { close(s.closed) })
	s.result(w, r, err)
}

func (s *Server) result(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case err == nil:
		s.respond(w, r, http.StatusOK, true, "")
	case engine.IsValidationError(err):
		s.respond(w, r, http.StatusBadRequest, false, err.Error())
	case errors.Is(err, dispatcher.ErrClosed):
		s.respond(w, r, http.StatusServiceUnavailable, false, err.Error())
	default:
		s.logger.Error("request failed", "id", requestID(r), "path", r.URL.Path, "error", err)
		s.respond(w, r, http.StatusInternalServerError, false, "internal error")
	}
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, code int, status bool, data string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(Response{Status: status, Data: data}); err != nil {
		s.logger.Warn("failed to encode response", "id", requestID(r), "error", err)
	}
}

type ctxKey struct{}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		s.logger.Trace("request", "id", id, "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}
