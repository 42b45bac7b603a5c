package workflows

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"case-outreach-service/internal/modal"
)

// callTracker holds call-completion signals keyed by conversation id. Signals for any
// conversation other than the one being awaited are kept but never matched.
type callTracker struct {
	completions map[string]modal.CallCompletionData
}

func newCallTracker(ctx workflow.Context, j *journal) *callTracker {
	t := &callTracker{completions: make(map[string]modal.CallCompletionData)}
	ch := workflow.GetSignalChannel(ctx, CallCompletedSignal)
	workflow.Go(ctx, func(ctx workflow.Context) {
		for {
			var data modal.CallCompletionData
			ch.Receive(ctx, &data)
			t.completions[data.ConversationID] = data
			j.add(ctx, "CALL_COMPLETED", "call completion received", map[string]any{
				"conversationId": data.ConversationID,
				"talkedToHuman":  data.TalkedToHuman,
			})
		}
	})
	return t
}

// reset drops completions from earlier attempts.
func (t *callTracker) reset() {
	t.completions = make(map[string]modal.CallCompletionData)
}

// await resolves the outcome of conversationID: first the completion signal within timeout,
// then the store, then the voice platform. Completed is false when no source knows yet.
func (t *callTracker) await(ctx workflow.Context, conversationID string, timeout time.Duration) (modal.CallStatus, string, error) {
	logger := workflow.GetLogger(ctx)

	ok, err := workflow.AwaitWithTimeout(ctx, timeout, func() bool {
		_, seen := t.completions[conversationID]
		return seen
	})
	if err != nil {
		return modal.CallStatus{}, "", err
	}
	if ok {
		data := t.completions[conversationID]
		return modal.CallStatus{
			Completed:     true,
			TalkedToHuman: data.TalkedToHuman,
			Failed:        data.Failed,
			FailureReason: data.FailureReason,
		}, "signal", nil
	}

	var status modal.CallStatus
	if err := workflow.ExecuteActivity(withStore(ctx), a.GetStoredCallStatus, conversationID).Get(ctx, &status); err != nil {
		logger.Warn("stored call status lookup failed", "conversationID", conversationID, "error", err)
	} else if status.Completed {
		return status, "store", nil
	}

	status = modal.CallStatus{}
	if err := workflow.ExecuteActivity(withPoll(ctx), a.PollCallStatus, conversationID).Get(ctx, &status); err != nil {
		logger.Warn("voice platform poll failed", "conversationID", conversationID, "error", err)
		return modal.CallStatus{}, "", nil
	}
	if status.Completed {
		return status, "platform", nil
	}
	return modal.CallStatus{}, "", nil
}
