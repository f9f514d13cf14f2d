// Package api serves the node HTTP API: job progress, counters and the
// Prometheus scrape endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/switchml/switchio/pkg/directory"
	"github.com/switchml/switchio/pkg/job"
	"github.com/switchml/switchio/pkg/node"
	"github.com/switchml/switchio/pkg/observability"
)

// maxRequestBodyBytes limits request bodies to 64 KiB.
const maxRequestBodyBytes = 64 << 10

// Node is the subset of *node.Local the API drives.
type Node interface {
	Identity() node.Identity
	Jobs() []job.Progress
	ReceiveAsyncFrom(srcID uint16, jobID uint32, total, workers int) (*job.Job, error)
	ReleaseFrom(srcID uint16, jobID uint32) bool
}

// Server exposes a Node over HTTP.
type Server struct {
	node    Node
	metrics *observability.Metrics
	dir     directory.Directory
	log     *zap.Logger
	router  *mux.Router
	http    *http.Server
}

// NewServer builds the router. dir may be nil, in which case /api/v1/peers
// returns 404.
func NewServer(n Node, m *observability.Metrics, dir directory.Directory, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{node: n, metrics: m, dir: dir, log: log.Named("api"), router: mux.NewRouter()}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(s.recoveryMiddleware, s.loggingMiddleware, bodyLimitMiddleware)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.PrometheusHandler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/node", s.handleNode).Methods(http.MethodGet)
	v1.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	v1.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	v1.HandleFunc("/jobs", s.handleCreateJob).Methods(http.MethodPost)
	v1.HandleFunc("/jobs/{node:[0-9]+}/{job:[0-9]+}", s.handleDeleteJob).Methods(http.MethodDelete)
	v1.HandleFunc("/peers", s.handleListPeers).Methods(http.MethodGet)
}

// ServeHTTP makes Server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve accepts connections on lis until Shutdown is called.
func (s *Server) Serve(lis net.Listener) error {
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	err := s.http.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server, waiting for active requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
