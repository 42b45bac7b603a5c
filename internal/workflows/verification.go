package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"case-outreach-service/internal/modal"
)

const DefaultVerificationTimeout = 7 * 24 * time.Hour

type VerificationInput struct {
	CaseID          string        `json:"caseId"`
	VerificationIDs []string      `json:"verificationIds"`
	Timeout         time.Duration `json:"timeout,omitempty"`
}

// VerificationResult partitions the verification ids by outcome.
type VerificationResult struct {
	Approved []string `json:"approved"`
	Rejected []string `json:"rejected"`
}

type VerificationState struct {
	CaseID   string   `json:"caseId"`
	Pending  []string `json:"pending"`
	Approved []string `json:"approved"`
	Rejected []string `json:"rejected"`
	Paused   bool     `json:"paused"`
}

// VerificationWorkflow blocks until every verification id has been resolved by a reviewer,
// or fails with VerificationTimeout.
func VerificationWorkflow(ctx workflow.Context, in VerificationInput) (res VerificationResult, err error) {
	logger := workflow.GetLogger(ctx)
	if in.Timeout <= 0 {
		in.Timeout = DefaultVerificationTimeout
	}

	j, err := newJournal(ctx)
	if err != nil {
		return res, err
	}
	gate := newPauseGate(ctx, j)

	pending := make(map[string]bool, len(in.VerificationIDs))
	for _, id := range in.VerificationIDs {
		pending[id] = true
	}
	decided := make(map[string]bool, len(in.VerificationIDs))
	res = VerificationResult{Approved: []string{}, Rejected: []string{}}

	if err := workflow.SetQueryHandler(ctx, StateQuery, func() (VerificationState, error) {
		s := VerificationState{CaseID: in.CaseID, Approved: res.Approved, Rejected: res.Rejected, Paused: gate.paused}
		for _, id := range in.VerificationIDs {
			if !decided[id] {
				s.Pending = append(s.Pending, id)
			}
		}
		return s, nil
	}); err != nil {
		return res, err
	}

	inst, err := registerSelf(ctx, "verification", in.CaseID, in)
	if err != nil {
		return res, err
	}
	defer func() { inst.finish(ctx, err) }()

	resolutions := workflow.GetSignalChannel(ctx, VerificationResolvedSignal)
	workflow.Go(ctx, func(ctx workflow.Context) {
		for {
			var r modal.VerificationResolution
			resolutions.Receive(ctx, &r)
			if !pending[r.VerificationID] {
				logger.Warn("resolution for unknown verification ignored", "verificationID", r.VerificationID)
				continue
			}
			if decided[r.VerificationID] {
				continue
			}

			approved := r.Approved
			var out modal.ResolutionOutcome
			if err := workflow.ExecuteActivity(withStore(ctx), a.ApplyVerificationResolution, r).Get(ctx, &out); err != nil {
				logger.Error("apply verification resolution failed", "verificationID", r.VerificationID, "error", err)
			} else {
				approved = out.Approved
			}
			if decided[r.VerificationID] {
				continue
			}
			decided[r.VerificationID] = true
			if approved {
				res.Approved = append(res.Approved, r.VerificationID)
			} else {
				res.Rejected = append(res.Rejected, r.VerificationID)
			}
			j.add(ctx, "RESOLVED", "verification resolved", map[string]any{
				"verificationId": r.VerificationID,
				"approved":       approved,
			})
		}
	})

	allDecided := func() bool { return len(decided) == len(pending) }

	inst.status(ctx, fmt.Sprintf("awaiting %d verification(s)", len(pending)))
	if err := gate.check(ctx); err != nil {
		return res, err
	}
	ok, err := workflow.AwaitWithTimeout(ctx, in.Timeout, allDecided)
	if err != nil {
		return res, err
	}
	if !ok {
		return res, failure(ErrVerificationTimeout, "%d of %d verification(s) unresolved after %s",
			len(pending)-len(decided), len(pending), in.Timeout)
	}
	logger.Info("verifications resolved", "caseID", in.CaseID, "approved", len(res.Approved), "rejected", len(res.Rejected))
	return res, nil
}
