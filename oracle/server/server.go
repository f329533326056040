// Package server exposes the daemon's informational HTTP surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/tidwall/sjson"

	"github.com/GPTx-global/flightoracle/oracle/health"
	"github.com/GPTx-global/flightoracle/oracle/log"
	"github.com/GPTx-global/flightoracle/oracle/monitor"
)

const apiGreeting = "An API for use with your Dapp!"

type Server struct {
	tracker  *monitor.Tracker
	checker  *health.Checker
	sink     *metrics.InmemSink
	expected int
	started  time.Time
}

// New returns a server over the tracker. checker and sink may be nil;
// expected is the configured number of oracles.
func New(tracker *monitor.Tracker, checker *health.Checker, sink *metrics.InmemSink, expected int) *Server {
	return &Server{
		tracker:  tracker,
		checker:  checker,
		sink:     sink,
		expected: expected,
		started:  time.Now(),
	}
}

// Handler returns the routed handler wrapped in a permissive CORS policy.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(loggingMiddleware)

	router.HandleFunc("/", s.index).Methods(http.MethodGet)
	router.HandleFunc("/api", s.api).Methods(http.MethodGet)
	router.HandleFunc("/status", s.status).Methods(http.MethodGet)
	router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	router.HandleFunc("/metrics", s.metrics).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions, http.MethodHead},
	})

	return c.Handler(router)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("http server listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%d oracles are instantiating, and %d oracles are running", s.tracker.Registered(), s.tracker.Active())
}

func (s *Server) api(w http.ResponseWriter, _ *http.Request) {
	body, _ := sjson.Set("", "message", apiGreeting)
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	body, err := s.statusJSON()
	if err != nil {
		log.Errorf("failed to build status: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, body)
}

// statusJSON renders the pool and its participation.
func (s *Server) statusJSON() (string, error) {
	body := `{"oracles":[]}`

	set := func(path string, value interface{}) error {
		var err error
		body, err = sjson.Set(body, path, value)
		return err
	}

	fields := []struct {
		path  string
		value interface{}
	}{
		{"configured", s.expected},
		{"registered", s.tracker.Registered()},
		{"active", s.tracker.Active()},
		{"failed", s.tracker.Failed()},
		{"uptime", time.Since(s.started).Round(time.Second).String()},
	}
	for _, f := range fields {
		if err := set(f.path, f.value); err != nil {
			return "", err
		}
	}

	for i, p := range s.tracker.Snapshot() {
		indexes := make([]int, len(p.Indexes))
		for j, idx := range p.Indexes {
			indexes[j] = int(idx)
		}

		prefix := fmt.Sprintf("oracles.%d.", i)
		entry := []struct {
			path  string
			value interface{}
		}{
			{"address", p.Address.Hex()},
			{"indexes", indexes},
			{"status", int(p.Status)},
			{"status_name", p.Status.String()},
			{"active", p.Active()},
			{"submitted", p.Submitted},
			{"rejected", p.Rejected},
		}
		for _, f := range entry {
			if err := set(prefix+f.path, f.value); err != nil {
				return "", err
			}
		}

		if p.LastRequest != "" {
			if err := set(prefix+"last_request", p.LastRequest); err != nil {
				return "", err
			}
			if err := set(prefix+"last_at", p.LastAt.UTC().Format(time.RFC3339)); err != nil {
				return "", err
			}
		}
		if p.LastError != "" {
			if err := set(prefix+"last_error", p.LastError); err != nil {
				return "", err
			}
		}
	}

	return body, nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	code := http.StatusOK
	body := `{"healthy":true,"checks":{}}`

	if s.checker != nil {
		if !s.checker.IsHealthy() {
			code = http.StatusServiceUnavailable
			body, _ = sjson.Set(body, "healthy", false)
		}

		for name, status := range s.checker.GetStatus() {
			raw, err := json.Marshal(status)
			if err != nil {
				continue
			}
			body, _ = sjson.SetRaw(body, "checks."+escapePath(name), string(raw))
		}
	}

	writeJSON(w, code, body)
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		http.NotFound(w, r)
		return
	}

	summary, err := s.sink.DisplayMetrics(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		log.Errorf("failed to encode metrics: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// escapePath escapes the characters sjson treats as path syntax.
func escapePath(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '.', '*', '?', '|', '#', '@', '\\':
			out = append(out, '\\')
		}
		out = append(out, name[i])
	}

	return string(out)
}
