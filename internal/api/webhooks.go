package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	twclient "github.com/twilio/twilio-go/client"
	"go.uber.org/zap"

	"case-outreach-service/internal/modal"
	"case-outreach-service/internal/phone"
	"case-outreach-service/internal/store"
	"case-outreach-service/internal/workflows"
	"case-outreach-service/pkg/voice"
)

const (
	kindSMS  = "sms"
	kindCall = "call"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

func (s *Server) countWebhook(kind, result string) {
	s.metrics.Webhooks.WithLabelValues(kind, result).Inc()
}

// claim reports whether this delivery should be processed. Without a deduper every
// delivery is processed.
func (s *Server) claim(ctx context.Context, kind, key string) (bool, error) {
	if s.dedupe == nil || key == "" {
		return true, nil
	}
	return s.dedupe.First(ctx, kind, key)
}

func (s *Server) release(ctx context.Context, kind, key string) {
	if s.dedupe == nil || key == "" {
		return
	}
	if err := s.dedupe.Release(ctx, kind, key); err != nil {
		s.log.Warn("release dedupe key", zap.String("kind", kind), zap.Error(err))
	}
}

func (s *Server) validTwilioSignature(r *http.Request) bool {
	if s.opts.TwilioAuthToken == "" {
		return true
	}
	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	validator := twclient.NewRequestValidator(s.opts.TwilioAuthToken)
	return validator.Validate(s.opts.PublicURL+r.URL.RequestURI(), params, r.Header.Get("X-Twilio-Signature"))
}

// handleInboundSMS routes a client's reply to their open case's outreach workflow.
// Replies from unknown numbers are acknowledged and dropped.
func (s *Server) handleInboundSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.countWebhook(kindSMS, "bad_request")
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.validTwilioSignature(r) {
		s.countWebhook(kindSMS, "forbidden")
		writeError(w, http.StatusForbidden, errors.New("invalid twilio signature"))
		return
	}
	from, body, sid := r.PostForm.Get("From"), r.PostForm.Get("Body"), r.PostForm.Get("MessageSid")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	first, err := s.claim(ctx, kindSMS, sid)
	if err != nil {
		s.countWebhook(kindSMS, "error")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !first {
		s.countWebhook(kindSMS, "duplicate")
		writeTwiML(w)
		return
	}

	result, err := s.routeInboundSMS(ctx, from, body, sid)
	if err != nil {
		s.release(ctx, kindSMS, sid)
		s.countWebhook(kindSMS, "error")
		s.log.Error("inbound sms", zap.String("sid", sid), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.countWebhook(kindSMS, result)
	writeTwiML(w)
}

func (s *Server) routeInboundSMS(ctx context.Context, from, body, sid string) (string, error) {
	normalized, err := phone.Normalize(from)
	if err != nil {
		s.log.Warn("inbound sms from unparseable number", zap.String("from", from))
		return "unmatched", nil
	}
	c, err := s.store.FindOpenCaseByPhone(ctx, normalized)
	if eris.Is(err, store.ErrNotFound) {
		s.log.Info("inbound sms without open case", zap.String("from", normalized))
		return "unmatched", nil
	}
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	if err := s.store.AddMessage(ctx, modal.Message{
		CaseID:     c.ID,
		Direction:  modal.DirectionInbound,
		Body:       body,
		ExternalID: sid,
		At:         now,
	}); err != nil {
		return "", err
	}

	err = s.tc.SignalWorkflow(ctx, workflows.OutreachWorkflowID(c.ID), "", workflows.UserResponseSignal,
		modal.UserResponse{Message: body, Timestamp: now})
	if isWorkflowGone(err) {
		// Outreach already finished; the message is still on the case thread.
		return "stored", nil
	}
	if err != nil {
		return "", err
	}
	return "signalled", nil
}

func writeTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

// handleCallCompleted stores a finished call's outcome and then signals the workflow that
// placed it. Progress updates for unfinished calls are ignored.
func (s *Server) handleCallCompleted(w http.ResponseWriter, r *http.Request) {
	var d voice.CallDetails
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil || d.ConversationID == "" {
		s.countWebhook(kindCall, "bad_request")
		writeError(w, http.StatusBadRequest, errors.New(`invalid body: {"conversation_id":"...","status":"done"}`))
		return
	}
	if !d.Finished() {
		s.countWebhook(kindCall, "ignored")
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "ignored": true})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	first, err := s.claim(ctx, kindCall, d.ConversationID)
	if err != nil {
		s.countWebhook(kindCall, "error")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !first {
		s.countWebhook(kindCall, "duplicate")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "duplicate": true})
		return
	}

	result, err := s.routeCallCompletion(ctx, &d)
	if err != nil {
		s.release(ctx, kindCall, d.ConversationID)
		s.countWebhook(kindCall, "error")
		writeError(w, statusFor(err), err)
		return
	}
	s.countWebhook(kindCall, result)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) routeCallCompletion(ctx context.Context, d *voice.CallDetails) (string, error) {
	status := modal.CallStatus{
		Completed:     true,
		TalkedToHuman: d.TalkedToHuman(),
		Failed:        d.Status == voice.StatusFailed,
		FailureReason: d.FailureReason,
	}
	err := s.store.CompleteCall(ctx, d.ConversationID, status, d.Transcript)
	if eris.Is(err, store.ErrNotFound) {
		err = s.adoptCall(ctx, d, status)
	}
	if err != nil {
		return "", err
	}
	call, err := s.store.GetCall(ctx, d.ConversationID)
	if err != nil {
		return "", err
	}
	if call.Purpose != modal.CallPurposeOutreach || call.WorkflowID == "" {
		return "stored", nil
	}

	err = s.tc.SignalWorkflow(ctx, call.WorkflowID, "", workflows.CallCompletedSignal, modal.CallCompletionData{
		ConversationID: d.ConversationID,
		TalkedToHuman:  status.TalkedToHuman,
		Failed:         status.Failed,
		FailureReason:  status.FailureReason,
	})
	if isWorkflowGone(err) {
		return "stored", nil
	}
	if err != nil {
		return "", err
	}
	return "signalled", nil
}

// adoptCall stores a call whose record the placing activity failed to write, using the
// metadata the platform echoes back. Calls without a workflow id stay unknown.
func (s *Server) adoptCall(ctx context.Context, d *voice.CallDetails, status modal.CallStatus) error {
	workflowID := d.Metadata["workflow_id"]
	if workflowID == "" {
		return eris.Wrapf(store.ErrNotFound, "call %s", d.ConversationID)
	}
	s.log.Warn("call completion for unrecorded call", zap.String("conversationID", d.ConversationID), zap.String("workflowID", workflowID))
	if err := s.store.CreateCall(ctx, modal.CallRecord{
		ConversationID: d.ConversationID,
		CaseID:         d.Metadata["case_id"],
		WorkflowID:     workflowID,
		Purpose:        d.Metadata["purpose"],
	}); err != nil {
		return err
	}
	return s.store.CompleteCall(ctx, d.ConversationID, status, d.Transcript)
}
