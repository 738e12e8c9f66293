package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muselab-d2x/releasegate/internal/errors"
	"github.com/muselab-d2x/releasegate/internal/logfields"
	"github.com/muselab-d2x/releasegate/internal/observability"
	"github.com/muselab-d2x/releasegate/internal/pipeline"
	"github.com/muselab-d2x/releasegate/internal/version"
)

// adminBackend is the daemon surface the admin endpoints read from.
type adminBackend interface {
	enqueuer
	ActiveRuns() int
	QueueLength() int
	Uptime() time.Duration
	RecentRuns() []RunRecord
}

// AdminServer serves the operational endpoints: health, status, metrics,
// and manual run triggering.
type AdminServer struct {
	server   *http.Server
	listener net.Listener
}

// statusResponse is the /status payload.
type statusResponse struct {
	Status      string      `json:"status"`
	Version     string      `json:"version"`
	Uptime      string      `json:"uptime"`
	ActiveRuns  int         `json:"active_runs"`
	QueueLength int         `json:"queue_length"`
	Runs        []RunRecord `json:"runs"`
}

// newAdminServer binds addr immediately so a taken port fails startup
// instead of surfacing later as a dead endpoint.
func newAdminServer(addr string, backend adminBackend) (*AdminServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryDaemon, errors.SeverityFatal, "binding admin address").
			WithContext("addr", addr)
	}

	var gatherer prom.Gatherer
	if d, ok := backend.(*Daemon); ok {
		gatherer = d.registry
	}

	server := &http.Server{
		Handler:      newAdminMux(backend, gatherer),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return &AdminServer{server: server, listener: ln}, nil
}

// Start serves in a tracked worker until Shutdown.
func (s *AdminServer) Start(workers *WorkerGroup) {
	workers.Go(func() {
		if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			observability.ErrorContext(context.Background(), "admin server failed", logfields.Error(err))
		}
	})
}

// Shutdown drains in-flight requests bounded by ctx.
func (s *AdminServer) Shutdown(ctx context.Context) {
	if err := s.server.Shutdown(ctx); err != nil {
		observability.WarnContext(ctx, "admin server shutdown", logfields.Error(err))
	}
}

// Addr returns the bound address, useful when addr was ":0".
func (s *AdminServer) Addr() string {
	return s.listener.Addr().String()
}

func newAdminMux(backend adminBackend, gatherer prom.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{
			Status:      "running",
			Version:     version.Version,
			Uptime:      backend.Uptime().Round(time.Second).String(),
			ActiveRuns:  backend.ActiveRuns(),
			QueueLength: backend.QueueLength(),
			Runs:        backend.RecentRuns(),
		})
	})

	mux.HandleFunc("/api/run/trigger", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := backend.Enqueue(pipeline.TriggerManual, nil, nil); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
	})

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
