// Package status implements the optional HTTP introspection server: a
// /health liveness endpoint and a /stats endpoint reporting parcel
// counts and feedback severities recorded through RecordEntity and Relay.
// Off by default; the CLI only starts it when --status-addr is set, and
// calls neither RecordEntity nor Relay, so under the CLI /stats reports
// zero counts. Adapted from the
// teacher's internal/service package (appHandler/appError/writeJSON
// pattern, gorilla/mux routing), reconstructed: the teacher's actual
// implementation of those three helpers was not retrieved into the
// pack, only its call sites across handler.go/health.go/tile.go, so
// this follows the same widely-used "error-returning http.Handler"
// idiom those call sites imply.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/tobilg/citystream/internal/pipeline"
)

const (
	contentTypeJSON = "application/json"
)

// appError carries an HTTP status and a user-facing message, returned by
// handlers instead of written directly — the same error-returning
// handler idiom the teacher's service package call sites imply.
type appError struct {
	Err     error
	Message string
	Code    int
}

// appHandler adapts a (w, r) -> *appError function into an http.Handler.
type appHandler func(w http.ResponseWriter, r *http.Request) *appError

func (fn appHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := fn(w, r); err != nil {
		if err.Err != nil {
			log.Warnf("status: %s: %v", err.Message, err.Err)
		}
		http.Error(w, err.Message, err.Code)
	}
}

func writeJSON(w http.ResponseWriter, contentType string, v interface{}) *appError {
	w.Header().Set("Content-Type", contentType)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return &appError{Err: err, Message: "encoding response", Code: http.StatusInternalServerError}
	}
	return nil
}

// Stats is the running tally of one pipeline.Run observed by this
// server, safe for concurrent updates from the feedback relay goroutine
// and reads from HTTP handlers.
type Stats struct {
	StartedAt  time.Time `json:"startedAt"`
	Entities   int64     `json:"entitiesProcessed"`
	Warnings   int64     `json:"warnings"`
	Fatals     int64     `json:"fatals"`
	LastError  string    `json:"lastError,omitempty"`
	lastErrMu  sync.Mutex
}

func (s *Stats) recordFeedback(msg pipeline.FeedbackMessage) {
	switch msg.Severity {
	case pipeline.SeverityWarn:
		atomic.AddInt64(&s.Warnings, 1)
	case pipeline.SeverityFatal:
		atomic.AddInt64(&s.Fatals, 1)
		s.lastErrMu.Lock()
		s.LastError = msg.Message
		s.lastErrMu.Unlock()
	}
}

func (s *Stats) recordEntity() {
	atomic.AddInt64(&s.Entities, 1)
}

func (s *Stats) snapshot() Stats {
	s.lastErrMu.Lock()
	defer s.lastErrMu.Unlock()
	return Stats{
		StartedAt: s.StartedAt,
		Entities:  atomic.LoadInt64(&s.Entities),
		Warnings:  atomic.LoadInt64(&s.Warnings),
		Fatals:    atomic.LoadInt64(&s.Fatals),
		LastError: s.LastError,
	}
}

// Server serves /health and /stats over addr until its context is
// cancelled.
type Server struct {
	stats *Stats
	http  *http.Server
}

// New returns a Server bound to addr, not yet listening.
func New(addr string) *Server {
	stats := &Stats{StartedAt: time.Now()}
	router := mux.NewRouter()
	router.Handle("/health", appHandler(func(w http.ResponseWriter, r *http.Request) *appError {
		return writeJSON(w, contentTypeJSON, map[string]string{"status": "ok"})
	})).Methods(http.MethodGet)
	router.Handle("/stats", appHandler(func(w http.ResponseWriter, r *http.Request) *appError {
		return writeJSON(w, contentTypeJSON, stats.snapshot())
	})).Methods(http.MethodGet)

	logged := handlers.LoggingHandler(log.StandardLogger().Writer(), router)

	return &Server{
		stats: stats,
		http:  &http.Server{Addr: addr, Handler: logged},
	}
}

// Relay consumes feedback off the pipeline's channel, updating Stats,
// until the channel closes. Meant to run in its own goroutine alongside
// pipeline.Run, fed the same feedback channel (or a fan-out of it).
func (s *Server) Relay(feedback <-chan pipeline.FeedbackMessage) {
	for msg := range feedback {
		s.stats.recordFeedback(msg)
	}
}

// RecordEntity increments the processed-entity counter; callers wire
// this into their own parcel-counting stage if they want /stats to
// reflect throughput, not just feedback severities.
func (s *Server) RecordEntity() {
	s.stats.recordEntity()
}

// ListenAndServe blocks serving HTTP until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("status: listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
