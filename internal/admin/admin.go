// Package admin exposes operational diagnostics (compiler catalog,
// uptime, session counters) over a unix-domain socket, kept separate
// from the client-facing TCP protocol per spec.md's "no front-end HTTP
// layer" scoping of the core itself.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wandbox-go/cattleshed/internal/compiler"
)

// Stats tracks process-lifetime counters the /stats endpoint reports.
// All fields are updated with atomic ops so Acceptor goroutines can
// bump them without a lock.
type Stats struct {
	SessionsTotal   atomic.Int64
	SessionsActive  atomic.Int64
	CompilesStarted atomic.Int64
	RunsStarted     atomic.Int64
}

// Server serves the admin diagnostics endpoints.
type Server struct {
	SocketPath string
	Registry   compiler.Registry
	Stats      *Stats
	startedAt  time.Time
}

func New(socketPath string, registry compiler.Registry, stats *Stats) *Server {
	return &Server{SocketPath: socketPath, Registry: registry, Stats: stats, startedAt: time.Now()}
}

// ListenAndServe blocks, serving HTTP over a unix socket at s.SocketPath
// until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	os.Remove(s.SocketPath)

	ln, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return fmt.Errorf("admin: listen unix %s: %w", s.SocketPath, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /compilers", s.handleCompilers)

	httpSrv := &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutCtx)
		os.Remove(s.SocketPath)
		return nil
	case err := <-errCh:
		os.Remove(s.SocketPath)
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type statsResponse struct {
	Uptime          string `json:"uptime"`
	SessionsTotal   int64  `json:"sessions_total"`
	SessionsActive  int64  `json:"sessions_active"`
	CompilesStarted int64  `json:"compiles_started"`
	RunsStarted     int64  `json:"runs_started"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Uptime:          humanize.RelTime(s.startedAt, time.Now(), "ago", ""),
		SessionsTotal:   s.Stats.SessionsTotal.Load(),
		SessionsActive:  s.Stats.SessionsActive.Load(),
		CompilesStarted: s.Stats.CompilesStarted.Load(),
		RunsStarted:     s.Stats.RunsStarted.Load(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type compilerSummary struct {
	Name        string `json:"name"`
	Language    string `json:"language"`
	DisplayName string `json:"display_name"`
}

func (s *Server) handleCompilers(w http.ResponseWriter, r *http.Request) {
	traits := s.Registry.Displayable()
	out := make([]compilerSummary, 0, len(traits))
	for _, t := range traits {
		out = append(out, compilerSummary{Name: t.Name, Language: t.Language, DisplayName: t.DisplayName})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
