package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"case-outreach-service/internal/modal"
)

// PollSchedule is a fast phase of signature polls followed by a slow one.
type PollSchedule struct {
	FastAttempts int           `json:"fastAttempts"`
	FastInterval time.Duration `json:"fastInterval"`
	SlowAttempts int           `json:"slowAttempts"`
	SlowInterval time.Duration `json:"slowInterval"`
}

var (
	DemoSchedule       = PollSchedule{FastAttempts: 20, FastInterval: 2 * time.Minute, SlowAttempts: 60, SlowInterval: 12 * time.Hour}
	ProductionSchedule = PollSchedule{FastAttempts: 20, FastInterval: 6 * time.Hour, SlowAttempts: 60, SlowInterval: 12 * time.Hour}
)

// ScheduleFor maps a records mode name to its schedule. Unknown modes poll on the demo schedule.
func ScheduleFor(mode string) PollSchedule {
	if mode == "production" {
		return ProductionSchedule
	}
	return DemoSchedule
}

func (s PollSchedule) empty() bool { return s.FastAttempts+s.SlowAttempts == 0 }

type RecordsInput struct {
	CaseID       string       `json:"caseId"`
	ProviderID   string       `json:"providerId"`
	ProviderName string       `json:"providerName"`
	Schedule     PollSchedule `json:"schedule"`
}

type RecordsResult struct {
	Success                bool                  `json:"success"`
	ProviderID             string                `json:"providerId"`
	ProviderName           string                `json:"providerName"`
	RequestID              string                `json:"requestId"`
	Channel                modal.DispatchChannel `json:"channel"`
	DispatchID             string                `json:"dispatchId"`
	FollowUpConversationID string                `json:"followUpConversationId,omitempty"`
}

type RecordsState struct {
	ProviderID string `json:"providerId"`
	RequestID  string `json:"requestId,omitempty"`
	Phase      string `json:"phase"`
	Polls      int    `json:"polls"`
	Paused     bool   `json:"paused"`
}

// RecordsWorkflow gets one provider's records authorization signed and sent to the provider.
func RecordsWorkflow(ctx workflow.Context, in RecordsInput) (res RecordsResult, err error) {
	logger := workflow.GetLogger(ctx)
	if in.Schedule.empty() {
		in.Schedule = DemoSchedule
	}
	res = RecordsResult{ProviderID: in.ProviderID, ProviderName: in.ProviderName}

	j, err := newJournal(ctx)
	if err != nil {
		return res, err
	}
	gate := newPauseGate(ctx, j)
	state := &RecordsState{ProviderID: in.ProviderID, Phase: "starting"}
	if err := workflow.SetQueryHandler(ctx, StateQuery, func() (RecordsState, error) {
		state.Paused = gate.paused
		return *state, nil
	}); err != nil {
		return res, err
	}

	inst, err := registerSelf(ctx, "records", in.CaseID, in)
	if err != nil {
		return res, err
	}
	defer func() { inst.finish(ctx, err) }()

	if err := gate.check(ctx); err != nil {
		return res, err
	}
	state.Phase = "authorizing"
	inst.status(ctx, "creating authorization")
	if err := workflow.ExecuteActivity(withMessaging(ctx), a.CreateAuthorization, modal.CreateAuthorizationInput{
		CaseID:       in.CaseID,
		ProviderID:   in.ProviderID,
		ProviderName: in.ProviderName,
	}).Get(ctx, &res.RequestID); err != nil {
		return res, err
	}
	state.RequestID = res.RequestID
	j.add(ctx, "AUTHORIZATION_CREATED", "authorization sent for signature", map[string]any{"requestId": res.RequestID})

	state.Phase = "awaiting_signature"
	inst.status(ctx, "awaiting signature")
	if err := awaitSignature(ctx, gate, in.Schedule, res.RequestID, state); err != nil {
		return res, err
	}
	j.add(ctx, "SIGNED", "authorization signed", map[string]any{"polls": state.Polls})

	if err := gate.check(ctx); err != nil {
		return res, err
	}
	state.Phase = "dispatching"
	var provider modal.Provider
	if err := workflow.ExecuteActivity(withStore(ctx), a.GetProviderContact, in.ProviderID).Get(ctx, &provider); err != nil {
		return res, err
	}

	dispatch := modal.DispatchInput{CaseID: in.CaseID, ProviderID: in.ProviderID, RequestID: res.RequestID}
	switch {
	case provider.Contact.Fax != "":
		dispatch.Contact = provider.Contact.Fax
		res.Channel = modal.ChannelFax
		err = workflow.ExecuteActivity(withMessaging(ctx), a.DispatchFax, dispatch).Get(ctx, &res.DispatchID)
	case provider.Contact.Email != "":
		dispatch.Contact = provider.Contact.Email
		res.Channel = modal.ChannelEmail
		err = workflow.ExecuteActivity(withMessaging(ctx), a.DispatchEmail, dispatch).Get(ctx, &res.DispatchID)
	default:
		return res, failure(ErrNoContactMethod, "provider %s has no fax or email", in.ProviderID)
	}
	if err != nil {
		return res, err
	}
	j.add(ctx, "DISPATCHED", "records request sent", map[string]any{"channel": res.Channel, "dispatchId": res.DispatchID})
	inst.status(ctx, fmt.Sprintf("sent by %s", res.Channel))

	// The follow-up call never changes the outcome.
	if provider.Contact.Phone != "" {
		if err := gate.check(ctx); err != nil {
			return res, err
		}
		state.Phase = "follow_up"
		if err := workflow.ExecuteActivity(withCall(ctx), a.PlaceFollowUpCall, modal.FollowUpCallInput{
			CaseID:       in.CaseID,
			ProviderID:   in.ProviderID,
			ProviderName: in.ProviderName,
			Phone:        provider.Contact.Phone,
			RequestID:    res.RequestID,
			WorkflowID:   workflow.GetInfo(ctx).WorkflowExecution.ID,
		}).Get(ctx, &res.FollowUpConversationID); err != nil {
			logger.Warn("follow-up call failed", "providerID", in.ProviderID, "error", err)
			j.add(ctx, "FOLLOW_UP_FAILED", "follow-up call failed", map[string]any{"error": err.Error()})
		}
	}

	state.Phase = "done"
	res.Success = true
	return res, nil
}

// awaitSignature polls the signature on the fast then the slow interval. A poll error counts
// as "not yet".
func awaitSignature(ctx workflow.Context, gate *pauseGate, s PollSchedule, requestID string, state *RecordsState) error {
	logger := workflow.GetLogger(ctx)
	phases := []struct {
		attempts int
		interval time.Duration
	}{
		{s.FastAttempts, s.FastInterval},
		{s.SlowAttempts, s.SlowInterval},
	}
	for _, p := range phases {
		for n := 0; n < p.attempts; n++ {
			if err := gate.check(ctx); err != nil {
				return err
			}
			if err := workflow.Sleep(ctx, p.interval); err != nil {
				return err
			}
			state.Polls++
			var sig modal.SignatureState
			if err := workflow.ExecuteActivity(withPoll(ctx), a.PollSignature, requestID).Get(ctx, &sig); err != nil {
				logger.Warn("signature poll failed", "requestID", requestID, "error", err)
				continue
			}
			if sig.Signed {
				return nil
			}
			if sig.Done {
				return failure(ErrSignatureDeclined, "authorization %s was not signed", requestID)
			}
		}
	}
	return failure(ErrSignatureTimeout, "authorization %s unsigned after %d polls", requestID, state.Polls)
}
