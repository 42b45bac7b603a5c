package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"case-outreach-service/internal/modal"
	"case-outreach-service/internal/phone"
	"case-outreach-service/internal/store"
	"case-outreach-service/internal/workflows"
)

type StartCaseRequest struct {
	CaseID      string `json:"caseId,omitempty"`
	ClientName  string `json:"clientName"`
	Phone       string `json:"phone"`
	MaxAttempts int    `json:"maxAttempts,omitempty"`
}

type StartCaseResponse struct {
	CaseID     string `json:"caseId"`
	WorkflowID string `json:"workflowId"`
	RunID      string `json:"runId"`
}

// RequestError is an error the caller can fix; Status is the HTTP status it maps to.
type RequestError struct {
	Status int
	Err    error
}

func (e *RequestError) Error() string { return e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

// StartCase creates the case, registers its coordinator and starts it. A second start for
// the same case id is rejected by Temporal's reuse policy.
func (s *Server) StartCase(ctx context.Context, req StartCaseRequest) (*StartCaseResponse, error) {
	if req.ClientName == "" || req.Phone == "" {
		return nil, &RequestError{http.StatusBadRequest, errors.New("clientName and phone are required")}
	}
	normalized, err := phone.Normalize(req.Phone)
	if err != nil {
		return nil, &RequestError{http.StatusBadRequest, err}
	}

	c, err := s.store.CreateCase(ctx, modal.Case{ID: req.CaseID, ClientName: req.ClientName, Phone: normalized})
	if err != nil {
		return nil, &RequestError{http.StatusConflict, err}
	}

	in := workflows.CaseInput{
		CaseID:              c.ID,
		Outreach:            s.opts.Outreach,
		VerificationTimeout: s.opts.VerificationTimeout,
		Schedule:            s.opts.Schedule,
	}
	if req.MaxAttempts > 0 {
		in.Outreach.MaxAttempts = req.MaxAttempts
	}
	wid := workflows.CaseWorkflowID(c.ID)

	params, _ := json.Marshal(in)
	if err := s.store.RegisterInstance(ctx, modal.RegisterInstanceInput{
		ID:        wid,
		Name:      "case",
		EntityRef: c.ID,
		Params:    params,
	}); err != nil {
		return nil, err
	}

	run, err := s.tc.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                                       wid,
		TaskQueue:                                s.opts.TaskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
		WorkflowIDReusePolicy:                    enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, workflows.CaseWorkflow, in)
	if err != nil {
		_ = s.store.MarkInstanceTerminal(ctx, wid, modal.InstanceFailed, "start: "+err.Error())
		return nil, err
	}
	s.log.Info("case started", zap.String("caseID", c.ID), zap.String("workflowID", run.GetID()))
	return &StartCaseResponse{CaseID: c.ID, WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

func (s *Server) handleStartCase(w http.ResponseWriter, r *http.Request) {
	var req StartCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New(`invalid body: {"clientName":"...","phone":"..."}`))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp, err := s.StartCase(ctx, req)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			writeError(w, reqErr.Status, reqErr)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCase(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleCaseInstances lists a case's instances, or nests them under their parents with
// ?tree=true.
func (s *Server) handleCaseInstances(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	if r.URL.Query().Get("tree") == "true" {
		roots, err := store.InstanceTree(r.Context(), s.store, caseID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, roots)
		return
	}
	instances, err := s.store.ListCaseInstances(r.Context(), caseID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, instances)
}

type instanceResp struct {
	modal.ProcessInstance
	Children []modal.ProcessInstance `json:"children"`
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")
	inst, err := s.store.GetInstance(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	children, err := s.store.ListChildInstances(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, instanceResp{ProcessInstance: *inst, Children: children})
}
