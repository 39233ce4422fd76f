package devserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/flowboard/internal/flow"
)

// pathID parses the {id} URL parameter, writing a validation error when it
// is not an integer.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeValidation(w, validationIssue{Loc: []string{"path", name}, Msg: "value is not a valid integer", Type: "type_error.integer"})
		return 0, false
	}
	return id, true
}

// ownedWorkflow loads the workflow named by the path and checks that the
// caller owns it. Workflows of other users are reported as missing.
func (s *Server) ownedWorkflow(w http.ResponseWriter, r *http.Request) (*flow.WorkflowRecord, bool) {
	id, ok := pathID(w, r, "workflow_id")
	if !ok {
		return nil, false
	}
	wf, err := s.repo.GetWorkflow(r.Context(), id)
	if errors.Is(err, ErrNotFound) || (err == nil && wf.OwnerID != userFrom(r.Context()).ID) {
		writeDetail(w, http.StatusNotFound, "Workflow not found")
		return nil, false
	}
	if err != nil {
		slog.Error("get workflow", "id", id, "err", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return wf, true
}

func decodeWorkflow(w http.ResponseWriter, r *http.Request) (flow.WorkflowWrite, bool) {
	var body flow.WorkflowWrite
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidation(w, validationIssue{Loc: []string{"body"}, Msg: "invalid JSON body", Type: "value_error.json"})
		return body, false
	}
	if strings.TrimSpace(body.Name) == "" {
		writeValidation(w, validationIssue{Loc: []string{"body", "name"}, Msg: "field required", Type: "value_error.missing"})
		return body, false
	}
	return body, true
}

func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	wfs, err := s.repo.ListWorkflows(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if wfs == nil {
		wfs = []flow.WorkflowRecord{}
	}
	writeJSON(w, http.StatusOK, wfs)
}

func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeWorkflow(w, r)
	if !ok {
		return
	}
	wf, err := s.repo.CreateWorkflow(r.Context(), userFrom(r.Context()).ID, body)
	if err != nil {
		slog.Error("create workflow", "name", body.Name, "err", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.ownedWorkflow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) replaceWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.ownedWorkflow(w, r)
	if !ok {
		return
	}
	body, ok := decodeWorkflow(w, r)
	if !ok {
		return
	}
	updated, err := s.repo.ReplaceWorkflow(r.Context(), wf.ID, body)
	if errors.Is(err, ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Workflow not found")
		return
	}
	if err != nil {
		slog.Error("replace workflow", "id", wf.ID, "err", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.ownedWorkflow(w, r)
	if !ok {
		return
	}
	if err := s.repo.DeleteWorkflow(r.Context(), wf.ID); err != nil && !errors.Is(err, ErrNotFound) {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
