// Package status serves the bot's runtime view over HTTP: Prometheus
// metrics, a health probe and the current day's schedule.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/slottrader/bot"
)

// Source is the loop's read-only view.
type Source interface {
	Snapshot() bot.Snapshot
}

type Options struct {
	Addr   string
	Source Source
	// Breaker reports the broker circuit state; nil means always closed.
	Breaker func() string
	Log     zerolog.Logger
}

type Server struct {
	opts   Options
	router *mux.Router
	srv    *http.Server
}

func NewServer(opts Options) *Server {
	s := &Server{opts: opts, router: mux.NewRouter()}
	s.routes()
	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.Use(s.requestID)
	s.router.Use(s.logRequests)

	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/schedule", s.schedule).Methods(http.MethodGet)
}

// Run serves until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.srv.ListenAndServe() }()
	s.opts.Log.Info().Str("addr", s.opts.Addr).Msg("status server listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	state := "closed"
	if s.opts.Breaker != nil {
		state = s.opts.Breaker()
	}
	code := http.StatusOK
	status := "ok"
	if state == "open" {
		code, status = http.StatusServiceUnavailable, "degraded"
	}
	writeJSON(w, code, map[string]string{"status": status, "breaker": state})
}

func (s *Server) schedule(w http.ResponseWriter, r *http.Request) {
	if s.opts.Source == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "loop not running"})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Source.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.New().String()[:8])
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.opts.Log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.code).
			Str("request_id", w.Header().Get("X-Request-ID")).
			Dur("took", time.Since(start)).
			Msg("http")
	})
}
