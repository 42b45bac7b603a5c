package activities

import (
	"bytes"
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"case-outreach-service/internal/modal"
	"case-outreach-service/internal/phone"
	"case-outreach-service/internal/store"
	"case-outreach-service/pkg/voice"
)

type templateData struct {
	FirstName  string
	ClientName string
}

func renderTemplate(text string, c *modal.Case) (string, error) {
	tmpl, err := template.New("outreach").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", eris.Wrap(err, "activities: parse template")
	}
	first := strings.TrimSpace(c.ClientName)
	if i := strings.IndexByte(first, ' '); i > 0 {
		first = first[:i]
	}
	if first == "" {
		first = "there"
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData{FirstName: first, ClientName: c.ClientName}); err != nil {
		return "", eris.Wrap(err, "activities: render template")
	}
	return buf.String(), nil
}

func (a *Activities) casePhone(ctx context.Context, caseID string) (*modal.Case, string, error) {
	c, err := a.Store.GetCase(ctx, caseID)
	if err != nil {
		return nil, "", err
	}
	to, err := phone.Normalize(c.Phone)
	if err != nil {
		return nil, "", temporal.NewNonRetryableApplicationError(err.Error(), ErrPlatformRejection, err)
	}
	return c, to, nil
}

// SendMessage texts the client the rendered template and records it in the case thread.
func (a *Activities) SendMessage(ctx context.Context, in modal.SendMessageInput) (string, error) {
	logger := activity.GetLogger(ctx)

	c, to, err := a.casePhone(ctx, in.CaseID)
	if err != nil {
		return "", err
	}
	body, err := renderTemplate(in.Template, c)
	if err != nil {
		return "", temporal.NewNonRetryableApplicationError(err.Error(), ErrPlatformRejection, err)
	}

	start := time.Now()
	res, err := a.SMS.Send(ctx, to, body)
	a.observe("sms", start)
	a.Metrics.MessagesSent.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		logger.Warn("send message failed", "caseID", in.CaseID, "attempt", in.Attempt, "error", err)
		return "", rejection(err)
	}

	if err := a.Store.AddMessage(ctx, modal.Message{
		CaseID:     in.CaseID,
		Direction:  modal.DirectionOutbound,
		Body:       body,
		ExternalID: res.ID,
	}); err != nil {
		// The text is out; a missing thread entry must not resend it.
		logger.Error("record outbound message failed", "caseID", in.CaseID, "error", err)
	}

	logger.Info("message sent", "caseID", in.CaseID, "attempt", in.Attempt, "messageID", res.ID)
	return res.ID, nil
}

// PlaceCall dials the client with the intake agent and returns the conversation id.
// It runs with a single-attempt retry policy: a second attempt would be a second call.
func (a *Activities) PlaceCall(ctx context.Context, in modal.PlaceCallInput) (string, error) {
	logger := activity.GetLogger(ctx)

	_, to, err := a.casePhone(ctx, in.CaseID)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := a.Voice.PlaceCall(ctx, voice.CallRequest{
		AgentID:    a.Settings.VoiceAgentID,
		ToNumber:   to,
		FromNumber: a.Settings.VoiceFrom,
		Metadata: map[string]string{
			"case_id":     in.CaseID,
			"workflow_id": in.WorkflowID,
			"purpose":     modal.CallPurposeOutreach,
		},
	})
	a.observe("voice", start)
	a.Metrics.CallsPlaced.WithLabelValues(modal.CallPurposeOutreach, resultLabel(err)).Inc()
	if err != nil {
		logger.Warn("place call failed", "caseID", in.CaseID, "attempt", in.Attempt, "error", err)
		return "", rejection(err)
	}

	if err := a.Store.CreateCall(ctx, modal.CallRecord{
		ConversationID: resp.ConversationID,
		CaseID:         in.CaseID,
		WorkflowID:     in.WorkflowID,
		Purpose:        modal.CallPurposeOutreach,
	}); err != nil {
		logger.Error("record call failed", "conversationID", resp.ConversationID, "error", err)
	}

	logger.Info("call placed", "caseID", in.CaseID, "attempt", in.Attempt, "conversationID", resp.ConversationID)
	return resp.ConversationID, nil
}

// GetStoredCallStatus reads the outcome the call webhook persisted, if any.
func (a *Activities) GetStoredCallStatus(ctx context.Context, conversationID string) (modal.CallStatus, error) {
	rec, err := a.Store.GetCall(ctx, conversationID)
	if eris.Is(err, store.ErrNotFound) {
		return modal.CallStatus{}, nil
	}
	if err != nil {
		return modal.CallStatus{}, err
	}
	if !rec.Completed {
		return modal.CallStatus{}, nil
	}
	return modal.CallStatus{
		Completed:     true,
		TalkedToHuman: rec.TalkedToHuman,
		Failed:        rec.Failed,
		FailureReason: rec.FailureReason,
	}, nil
}

// PollCallStatus asks the voice platform directly. A finished call is written back to the
// store so later reads agree.
func (a *Activities) PollCallStatus(ctx context.Context, conversationID string) (modal.CallStatus, error) {
	start := time.Now()
	details, err := a.Voice.GetCall(ctx, conversationID)
	a.observe("voice", start)
	if err != nil {
		return modal.CallStatus{}, rejection(err)
	}

	status := toCallStatus(details)
	if status.Completed {
		a.Metrics.CallOutcomes.WithLabelValues(outcomeLabel(status)).Inc()
		if err := a.Store.CompleteCall(ctx, conversationID, status, details.Transcript); err != nil {
			activity.GetLogger(ctx).Warn("persist polled call outcome failed", "conversationID", conversationID, "error", err)
		}
	}
	return status, nil
}

// UpdateCaseStatus moves the case to status with an optional reason.
func (a *Activities) UpdateCaseStatus(ctx context.Context, caseID string, status modal.CaseStatus, reason string) error {
	return a.Store.UpdateCaseStatus(ctx, caseID, status, reason)
}

// RecordCaseFailure marks the case failed with reason.
func (a *Activities) RecordCaseFailure(ctx context.Context, caseID, reason string) error {
	activity.GetLogger(ctx).Warn("case failed", "caseID", caseID, "reason", reason)
	return a.Store.UpdateCaseStatus(ctx, caseID, modal.CaseFailed, reason)
}
