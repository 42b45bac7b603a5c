package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"case-outreach-service/internal/modal"
)

// CaseInput configures the whole lifecycle of one case.
type CaseInput struct {
	CaseID              string        `json:"caseId"`
	Outreach            OutreachInput `json:"outreach"`
	VerificationTimeout time.Duration `json:"verificationTimeout,omitempty"`
	Schedule            PollSchedule  `json:"schedule"`
}

// ProviderOutcome is one records retrieval's settled result.
type ProviderOutcome struct {
	ProviderID   string `json:"providerId"`
	ProviderName string `json:"providerName"`
	Success      bool   `json:"success"`
	RequestID    string `json:"requestId,omitempty"`
	Error        string `json:"error,omitempty"`
}

type CaseResult struct {
	Success            bool                `json:"success"`
	Outreach           OutreachResult      `json:"outreach"`
	Verification       *VerificationResult `json:"verification,omitempty"`
	ProvidersProcessed int                 `json:"providersProcessed"`
	Results            []ProviderOutcome   `json:"results"`
}

type CaseState struct {
	CaseID    string            `json:"caseId"`
	Phase     string            `json:"phase"`
	Paused    bool              `json:"paused"`
	Providers int               `json:"providers"`
	Results   []ProviderOutcome `json:"results,omitempty"`
}

// CaseWorkflow runs outreach, provider verification and records retrieval for one case.
// Outreach failure or a verification timeout ends the case; provider failures do not.
func CaseWorkflow(ctx workflow.Context, in CaseInput) (res CaseResult, err error) {
	logger := workflow.GetLogger(ctx)
	in.Outreach.CaseID = in.CaseID
	res.Results = []ProviderOutcome{}

	j, err := newJournal(ctx)
	if err != nil {
		return res, err
	}
	gate := newPauseGate(ctx, j)
	state := &CaseState{CaseID: in.CaseID, Phase: "starting"}
	if err := workflow.SetQueryHandler(ctx, StateQuery, func() (CaseState, error) {
		state.Paused = gate.paused
		return *state, nil
	}); err != nil {
		return res, err
	}

	inst, err := registerSelf(ctx, "case", in.CaseID, in)
	if err != nil {
		return res, err
	}
	defer func() { inst.finish(ctx, err) }()
	selfID := inst.id

	phase := func(name, message string) {
		state.Phase = name
		j.add(ctx, "PHASE", message, map[string]any{"phase": name})
		inst.status(ctx, message)
	}
	fail := func(cause error, reason string) error {
		state.Phase = "failed"
		if err := workflow.ExecuteActivity(withStore(ctx), a.RecordCaseFailure, in.CaseID, reason).Get(ctx, nil); err != nil {
			logger.Error("record case failure failed", "caseID", in.CaseID, "error", err)
		}
		return cause
	}

	// Outreach.
	if err := gate.check(ctx); err != nil {
		return res, err
	}
	phase("outreach", "contacting client")
	outreachID := OutreachWorkflowID(in.CaseID)
	if err := registerChild(ctx, outreachID, "outreach", selfID, in.CaseID, in.Outreach); err != nil {
		return res, err
	}
	if err := workflow.ExecuteChildWorkflow(childOptions(ctx, outreachID), OutreachWorkflow, in.Outreach).
		Get(ctx, &res.Outreach); err != nil {
		return res, fail(err, "outreach failed: "+errorMessage(err))
	}
	if !res.Outreach.Success {
		// The outreach instance already recorded the case failure.
		state.Phase = "failed"
		return res, failure(ErrNoContact, "%s", res.Outreach.FailureReason)
	}
	if err := workflow.ExecuteActivity(withStore(ctx), a.UpdateCaseStatus, in.CaseID, modal.CaseContacted, "").Get(ctx, nil); err != nil {
		logger.Warn("mark case contacted failed", "caseID", in.CaseID, "error", err)
	}

	// Extraction.
	if err := gate.check(ctx); err != nil {
		return res, err
	}
	phase("extracting", "extracting providers")
	transcript := modal.TranscriptInput{CaseID: in.CaseID, ConversationID: res.Outreach.ConversationID}
	var pending []string
	if err := workflow.ExecuteActivity(withLLM(ctx), a.ExtractProviders, transcript).Get(ctx, &pending); err != nil {
		reason := "provider extraction failed: " + errorMessage(err)
		return res, fail(failure(ErrExtractionFailed, "%s", reason), reason)
	}

	// Verification gate.
	if len(pending) > 0 {
		if err := gate.check(ctx); err != nil {
			return res, err
		}
		phase("verification", fmt.Sprintf("awaiting review of %d provider(s)", len(pending)))
		verificationID := VerificationWorkflowID(in.CaseID)
		vin := VerificationInput{CaseID: in.CaseID, VerificationIDs: pending, Timeout: in.VerificationTimeout}
		if err := registerChild(ctx, verificationID, "verification", selfID, in.CaseID, vin); err != nil {
			return res, err
		}
		var vres VerificationResult
		if err := workflow.ExecuteChildWorkflow(childOptions(ctx, verificationID), VerificationWorkflow, vin).
			Get(ctx, &vres); err != nil {
			return res, fail(err, "verification failed: "+errorMessage(err))
		}
		res.Verification = &vres
	}

	// Records retrieval, settle all.
	if err := gate.check(ctx); err != nil {
		return res, err
	}
	var providers []modal.Provider
	if err := workflow.ExecuteActivity(withStore(ctx), a.ListVerifiedProviders, in.CaseID).Get(ctx, &providers); err != nil {
		return res, err
	}
	state.Providers = len(providers)
	phase("records", fmt.Sprintf("retrieving records from %d provider(s)", len(providers)))

	type branch struct {
		provider modal.Provider
		future   workflow.ChildWorkflowFuture
		err      error
	}
	branches := make([]branch, 0, len(providers))
	for _, p := range providers {
		rin := RecordsInput{CaseID: in.CaseID, ProviderID: p.ID, ProviderName: p.Name, Schedule: in.Schedule}
		childID := RecordsWorkflowID(in.CaseID, p.ID)
		b := branch{provider: p}
		if b.err = registerChild(ctx, childID, "records", selfID, in.CaseID, rin); b.err == nil {
			b.future = workflow.ExecuteChildWorkflow(childOptions(ctx, childID), RecordsWorkflow, rin)
		}
		branches = append(branches, b)
	}

	res.Success = true
	for _, b := range branches {
		out := ProviderOutcome{ProviderID: b.provider.ID, ProviderName: b.provider.Name}
		err := b.err
		if err == nil {
			var rres RecordsResult
			if err = b.future.Get(ctx, &rres); err == nil {
				out.Success = rres.Success
				out.RequestID = rres.RequestID
			}
		}
		if err != nil {
			out.Error = errorMessage(err)
			logger.Warn("records retrieval failed", "caseID", in.CaseID, "providerID", b.provider.ID, "error", err)
		}
		res.Success = res.Success && out.Success
		res.Results = append(res.Results, out)
		state.Results = res.Results
	}
	res.ProvidersProcessed = len(res.Results)

	// Downstream analysis is best effort.
	phase("analysis", "analysing transcript")
	if err := workflow.ExecuteActivity(withLLM(ctx), a.AnalyzeTranscript, transcript).Get(ctx, nil); err != nil {
		logger.Warn("transcript analysis failed", "caseID", in.CaseID, "error", err)
	}

	reason := ""
	if !res.Success {
		reason = fmt.Sprintf("%d of %d provider(s) failed", countFailed(res.Results), len(res.Results))
	}
	if err := workflow.ExecuteActivity(withStore(ctx), a.UpdateCaseStatus, in.CaseID, modal.CaseCompleted, reason).Get(ctx, nil); err != nil {
		logger.Warn("mark case completed failed", "caseID", in.CaseID, "error", err)
	}
	phase("done", fmt.Sprintf("completed, %d provider(s) processed", res.ProvidersProcessed))
	return res, nil
}

func countFailed(results []ProviderOutcome) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}

func childOptions(ctx workflow.Context, id string) workflow.Context {
	return workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: id})
}
