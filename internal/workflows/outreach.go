package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"case-outreach-service/internal/modal"
)

const (
	DefaultMaxAttempts         = 7
	DefaultWaitBetweenAttempts = 24 * time.Hour
	DefaultMessageToCallDelay  = time.Minute
	DefaultCallSignalTimeout   = 30 * time.Minute
)

// OutreachInput configures one outreach loop. Zero values take the defaults above.
type OutreachInput struct {
	CaseID              string        `json:"caseId"`
	MaxAttempts         int           `json:"maxAttempts,omitempty"`
	WaitBetweenAttempts time.Duration `json:"waitBetweenAttempts,omitempty"`
	MessageToCallDelay  time.Duration `json:"messageToCallDelay,omitempty"`
	CallSignalTimeout   time.Duration `json:"callSignalTimeout,omitempty"`
	Templates           []string      `json:"templates"`
}

func (in *OutreachInput) applyDefaults() {
	if in.MaxAttempts <= 0 {
		in.MaxAttempts = DefaultMaxAttempts
	}
	if in.WaitBetweenAttempts <= 0 {
		in.WaitBetweenAttempts = DefaultWaitBetweenAttempts
	}
	if in.MessageToCallDelay <= 0 {
		in.MessageToCallDelay = DefaultMessageToCallDelay
	}
	if in.CallSignalTimeout <= 0 {
		in.CallSignalTimeout = DefaultCallSignalTimeout
	}
}

// template returns the message for attempt i. Later attempts reuse the last template.
func (in OutreachInput) template(i int) string {
	if len(in.Templates) == 0 {
		return ""
	}
	if i >= len(in.Templates) {
		i = len(in.Templates) - 1
	}
	return in.Templates[i]
}

// OutreachResult reports how the loop ended.
type OutreachResult struct {
	Success        bool                `json:"success"`
	PickedUp       bool                `json:"pickedUp"`
	UserResponded  bool                `json:"userResponded"`
	Response       *modal.UserResponse `json:"response,omitempty"`
	Attempts       int                 `json:"attempts"`
	ConversationID string              `json:"conversationId,omitempty"`
	FailureReason  string              `json:"failureReason,omitempty"`
}

// OutreachState is served by the state query.
type OutreachState struct {
	CaseID         string              `json:"caseId"`
	Attempt        int                 `json:"attempt"`
	Phase          string              `json:"phase"`
	Paused         bool                `json:"paused"`
	PickedUp       bool                `json:"pickedUp"`
	Response       *modal.UserResponse `json:"response,omitempty"`
	ConversationID string              `json:"conversationId,omitempty"`
}

// OutreachWorkflow texts and calls the client once per attempt until they pick up, reply,
// or the attempts run out.
func OutreachWorkflow(ctx workflow.Context, in OutreachInput) (res OutreachResult, err error) {
	logger := workflow.GetLogger(ctx)
	in.applyDefaults()

	j, err := newJournal(ctx)
	if err != nil {
		return res, err
	}
	gate := newPauseGate(ctx, j)
	calls := newCallTracker(ctx, j)

	state := &OutreachState{CaseID: in.CaseID, Phase: "starting"}
	if err := workflow.SetQueryHandler(ctx, StateQuery, func() (OutreachState, error) {
		state.Paused = gate.paused
		return *state, nil
	}); err != nil {
		return res, err
	}

	responses := workflow.GetSignalChannel(ctx, UserResponseSignal)
	workflow.Go(ctx, func(ctx workflow.Context) {
		for {
			var r modal.UserResponse
			responses.Receive(ctx, &r)
			if state.Response == nil {
				state.Response = &r
				j.add(ctx, "USER_RESPONDED", "client replied", map[string]any{"message": r.Message})
			}
		}
	})

	inst, err := registerSelf(ctx, "outreach", in.CaseID, in)
	if err != nil {
		return res, err
	}
	defer func() {
		if err != nil {
			inst.finish(ctx, err)
		} else if !res.Success {
			inst.finishWith(ctx, modal.InstanceFailed, ErrNoContact+": "+res.FailureReason)
		} else {
			inst.finish(ctx, nil)
		}
	}()

	workflowID := workflow.GetInfo(ctx).WorkflowExecution.ID
	done := func() bool { return state.PickedUp || state.Response != nil }

	for i := 0; i < in.MaxAttempts && !done(); i++ {
		attempt := i + 1
		state.Attempt = attempt
		res.Attempts = attempt
		calls.reset()
		inst.status(ctx, fmt.Sprintf("attempt %d of %d", attempt, in.MaxAttempts))

		if err := gate.check(ctx); err != nil {
			return res, err
		}
		state.Phase = "messaging"
		var messageID string
		if err := workflow.ExecuteActivity(withMessaging(ctx), a.SendMessage, modal.SendMessageInput{
			CaseID:   in.CaseID,
			Template: in.template(i),
			Attempt:  attempt,
		}).Get(ctx, &messageID); err != nil {
			logger.Warn("outreach message failed", "caseID", in.CaseID, "attempt", attempt, "error", err)
			j.add(ctx, "MESSAGE_FAILED", "outreach message failed", map[string]any{"attempt": attempt, "error": err.Error()})
		} else {
			j.add(ctx, "MESSAGE_SENT", "outreach message sent", map[string]any{"attempt": attempt, "messageId": messageID})
		}

		if err := gate.check(ctx); err != nil {
			return res, err
		}
		state.Phase = "waiting_to_call"
		if err := workflow.Sleep(ctx, in.MessageToCallDelay); err != nil {
			return res, err
		}
		if done() {
			break
		}

		if err := gate.check(ctx); err != nil {
			return res, err
		}
		state.Phase = "calling"
		var conversationID string
		if err := workflow.ExecuteActivity(withCall(ctx), a.PlaceCall, modal.PlaceCallInput{
			CaseID:     in.CaseID,
			WorkflowID: workflowID,
			Attempt:    attempt,
		}).Get(ctx, &conversationID); err != nil {
			logger.Warn("outreach call failed", "caseID", in.CaseID, "attempt", attempt, "error", err)
			j.add(ctx, "CALL_FAILED", "outreach call could not be placed", map[string]any{"attempt": attempt, "error": err.Error()})
		} else {
			state.ConversationID = conversationID
			state.Phase = "awaiting_call_outcome"
			status, source, err := calls.await(ctx, conversationID, in.CallSignalTimeout)
			if err != nil {
				return res, err
			}
			switch {
			case !status.Completed:
				j.add(ctx, "CALL_UNRESOLVED", "no outcome for call", map[string]any{"conversationId": conversationID})
			case status.TalkedToHuman:
				state.PickedUp = true
				res.ConversationID = conversationID
				j.add(ctx, "PICKED_UP", "client picked up", map[string]any{"conversationId": conversationID, "source": source})
			case status.Failed:
				j.add(ctx, "CALL_FAILED", "call failed", map[string]any{"conversationId": conversationID, "reason": status.FailureReason})
			default:
				j.add(ctx, "NO_ANSWER", "call ended without the client", map[string]any{"conversationId": conversationID, "source": source})
			}
		}

		if done() || attempt == in.MaxAttempts {
			break
		}
		if err := gate.check(ctx); err != nil {
			return res, err
		}
		state.Phase = "waiting_between_attempts"
		if _, err := workflow.AwaitWithTimeout(ctx, in.WaitBetweenAttempts, func() bool {
			return state.Response != nil
		}); err != nil {
			return res, err
		}
	}

	res.PickedUp = state.PickedUp
	res.Response = state.Response
	res.UserResponded = state.Response != nil
	res.Success = done()
	if res.Success {
		state.Phase = "contacted"
		logger.Info("client contacted", "caseID", in.CaseID, "attempts", res.Attempts, "pickedUp", res.PickedUp)
		return res, nil
	}

	state.Phase = "failed"
	res.FailureReason = fmt.Sprintf("no contact after %d attempts", res.Attempts)
	if err := workflow.ExecuteActivity(withStore(ctx), a.RecordCaseFailure, in.CaseID, res.FailureReason).Get(ctx, nil); err != nil {
		logger.Error("record case failure failed", "caseID", in.CaseID, "error", err)
	}
	j.add(ctx, "FAILED", res.FailureReason, nil)
	return res, nil
}
