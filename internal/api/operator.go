package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.temporal.io/api/workflowservice/v1"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"case-outreach-service/internal/modal"
	"case-outreach-service/internal/store"
	"case-outreach-service/internal/workflows"
)

const cascadeParallelism = 8

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var sig modal.PauseSignal
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	s.signalTree(w, r, workflows.PauseSignal, sig)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var sig modal.ResumeSignal
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	s.signalTree(w, r, workflows.ResumeSignal, sig)
}

// signalTree signals the workflow and, with ?cascade=true, every running descendant the
// registrar knows about. Descendants that finished in the meantime are skipped.
func (s *Server) signalTree(w http.ResponseWriter, r *http.Request, name string, arg any) {
	root := chi.URLParam(r, "workflowID")
	cascade, _ := strconv.ParseBool(r.URL.Query().Get("cascade"))

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := s.tc.SignalWorkflow(ctx, root, "", name, arg); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	signalled := []string{root}
	if !cascade {
		writeJSON(w, http.StatusOK, map[string]any{"signalled": signalled})
		return
	}

	targets, err := store.RunningDescendants(ctx, s.store, root)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	done := make([]bool, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cascadeParallelism)
	for i, id := range targets {
		g.Go(func() error {
			err := s.tc.SignalWorkflow(gctx, id, "", name, arg)
			if isWorkflowGone(err) {
				return nil
			}
			done[i] = err == nil
			return err
		})
	}
	if err := g.Wait(); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	for i, ok := range done {
		if ok {
			signalled = append(signalled, targets[i])
		}
	}
	s.log.Info("cascade signal", zap.String("signal", name), zap.String("root", root), zap.Strings("targets", signalled))
	writeJSON(w, http.StatusOK, map[string]any{"signalled": signalled})
}

type resolveReq struct {
	Approved    bool               `json:"approved"`
	ContactInfo *modal.ContactInfo `json:"contactInfo,omitempty"`
	Actor       string             `json:"actor"`
}

// handleResolveVerification records the reviewer's decision and hands it to the gate. A
// repeated decision keeps the first outcome and is still acknowledged.
func (s *Server) handleResolveVerification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "verificationID")
	var req resolveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New(`invalid body: {"approved":true,"actor":"..."}`))
		return
	}
	if req.Actor == "" {
		req.Actor = "reviewer"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	v, err := s.store.GetVerification(ctx, id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	now := time.Now().UTC()
	first, err := s.store.ResolveVerification(ctx, id, req.Approved, req.Actor, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	res := modal.VerificationResolution{
		VerificationID: id,
		Approved:       req.Approved,
		ContactInfo:    req.ContactInfo,
		Actor:          req.Actor,
		ResolvedAt:     now,
	}
	if err := s.tc.SignalWorkflow(ctx, workflows.VerificationWorkflowID(v.CaseID), "", workflows.VerificationResolvedSignal, res); err != nil {
		if !isWorkflowGone(err) {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		s.log.Warn("verification gate not running", zap.String("verificationID", id), zap.String("caseID", v.CaseID))
	}
	writeJSON(w, http.StatusOK, map[string]any{"verificationId": id, "alreadyResolved": !first})
}

func (s *Server) handleQuery(queryType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		qr, err := s.tc.QueryWorkflow(ctx, chi.URLParam(r, "workflowID"), r.URL.Query().Get("runId"), queryType)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		var v any
		if err := qr.Get(&v); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

type workflowRow struct {
	WorkflowID string    `json:"workflowId"`
	RunID      string    `json:"runId"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"startedAt"`
}

// handleListWorkflows lists executions from Temporal visibility, running ones by default.
// ?case=<id> narrows to one case's tree.
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	query := `ExecutionStatus = "Running"`
	if r.URL.Query().Get("status") == "all" {
		query = ""
	}
	if caseID := r.URL.Query().Get("case"); caseID != "" {
		prefix := `WorkflowId STARTS_WITH "` + workflows.CaseWorkflowID(caseID) + `"`
		if query == "" {
			query = prefix
		} else {
			query += " AND " + prefix
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	resp, err := s.tc.ListWorkflow(ctx, &workflowservice.ListWorkflowExecutionsRequest{
		Query:    query,
		PageSize: 200,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	rows := make([]workflowRow, 0, len(resp.GetExecutions()))
	for _, ex := range resp.GetExecutions() {
		if ex.GetExecution() == nil {
			continue
		}
		rows = append(rows, workflowRow{
			WorkflowID: ex.GetExecution().GetWorkflowId(),
			RunID:      ex.GetExecution().GetRunId(),
			Type:       ex.GetType().GetName(),
			Status:     ex.GetStatus().String(),
			StartedAt:  ex.GetStartTime().AsTime(),
		})
	}
	writeJSON(w, http.StatusOK, rows)
}
