package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lynx-network/lynx-indexer/pkg/engine"
)

type statusReporter interface {
	Status() engine.Status
}

type healthChecker interface {
	Health(ctx context.Context) error
}

type metricsSource interface {
	Registry() *prometheus.Registry
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State  string         `json:"state"`
	Engine *engine.Status `json:"engine,omitempty"`
}

// NewRouter returns the status router: liveness, readiness, progress and metrics.
func (a *App) NewRouter() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })).Methods("GET")
	r.HandleFunc("/readyz", a.handleReady).Methods("GET")
	r.HandleFunc("/status", a.handleStatus).Methods("GET")

	if src, ok := a.Sequencer.Engine().(metricsSource); ok {
		r.Handle("/metrics", promhttp.HandlerFor(src.Registry(), promhttp.HandlerOpts{})).Methods("GET")
	}
	return r
}

// handleReady answers 200 once the indexer is running and its outputs respond.
func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.Sequencer.State() != StateRunning {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if hc, ok := a.Sequencer.Engine().(healthChecker); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := hc.Health(ctx); err != nil {
			a.Logger.Warn("Readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{State: a.Sequencer.State().String()}
	if rep, ok := a.Sequencer.Engine().(statusReporter); ok {
		st := rep.Status()
		resp.Engine = &st
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// serveStatus starts the status server when an address is configured.
// A listen failure is logged and otherwise ignored; it never affects the exit code.
func (a *App) serveStatus() {
	merged := a.Sequencer.Merged()
	if merged == nil || merged.Server.Addr == "" {
		return
	}
	ln, err := net.Listen("tcp", merged.Server.Addr)
	if err != nil {
		a.Logger.Error("Unable to start status server", zap.String("addr", merged.Server.Addr), zap.Error(err))
		return
	}
	a.Server = &http.Server{Handler: a.NewRouter()}
	a.Logger.Info("Starting status server", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("Status server stopped", zap.Error(err))
		}
	}()
}
