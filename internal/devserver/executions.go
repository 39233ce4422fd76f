package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/soochol/flowboard/internal/flow"
)

func (s *Server) startExecution(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.ownedWorkflow(w, r)
	if !ok {
		return
	}
	exec, err := s.repo.CreateExecution(r.Context(), wf.ID)
	if err != nil {
		slog.Error("create execution", "workflow_id", wf.ID, "err", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	snapshot := *wf
	s.goExecute(func(ctx context.Context) {
		s.sim.Run(ctx, snapshot, exec.ID)
	})

	writeJSON(w, http.StatusOK, flow.LaunchResponse{
		Message:     "Workflow execution started",
		ExecutionID: exec.ID,
	})
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.ownedWorkflow(w, r)
	if !ok {
		return
	}
	execs, err := s.repo.ListExecutions(r.Context(), wf.ID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if execs == nil {
		execs = []flow.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, execs)
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "execution_id")
	if !ok {
		return
	}
	exec, err := s.repo.GetExecution(r.Context(), id)
	if err == nil {
		// Executions are visible only through workflows the caller owns.
		var wf *flow.WorkflowRecord
		wf, err = s.repo.GetWorkflow(r.Context(), exec.WorkflowID)
		if err == nil && wf.OwnerID != userFrom(r.Context()).ID {
			err = ErrNotFound
		}
	}
	if errors.Is(err, ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Execution not found")
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, exec)
}
