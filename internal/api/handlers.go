package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/switchml/switchio/pkg/job"
	"github.com/switchml/switchio/pkg/node"
)

// CreateJobRequest begins an asynchronous receive on the node.
type CreateJobRequest struct {
	JobID   uint32 `json:"job_id"`
	Source  uint16 `json:"source_node_id"`
	Total   int    `json:"total"`
	Workers int    `json:"workers"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Identity())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.GetMetrics())
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Jobs())
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Workers == 0 {
		req.Workers = 1
	}
	j, err := s.node.ReceiveAsyncFrom(req.Source, req.JobID, req.Total, req.Workers)
	switch {
	case errors.Is(err, job.ErrInvalidJob):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, node.ErrJobExists):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, node.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, j.Progress())
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	src, err := strconv.ParseUint(vars["node"], 10, 16)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid node id")
		return
	}
	jobID, err := strconv.ParseUint(vars["job"], 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	if !s.node.ReleaseFrom(uint16(src), uint32(jobID)) {
		writeError(w, http.StatusNotFound, "job not tracked")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPeers(w http.ResponseWriter, r *http.Request) {
	if s.dir == nil {
		writeError(w, http.StatusNotFound, "no directory configured")
		return
	}
	peers, err := s.dir.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, peers)
}
