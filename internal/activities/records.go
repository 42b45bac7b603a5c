package activities

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"case-outreach-service/internal/modal"
	"case-outreach-service/internal/phone"
	"case-outreach-service/pkg/email"
	"case-outreach-service/pkg/esign"
	"case-outreach-service/pkg/fax"
	"case-outreach-service/pkg/voice"
)

// CreateAuthorization opens a HIPAA authorization for the client to sign and records it as
// an unsigned records request keyed by the e-signature request id.
func (a *Activities) CreateAuthorization(ctx context.Context, in modal.CreateAuthorizationInput) (string, error) {
	c, err := a.Store.GetCase(ctx, in.CaseID)
	if err != nil {
		return "", err
	}
	signerPhone, _ := phone.Normalize(c.Phone)

	start := time.Now()
	req, err := a.ESign.CreateRequest(ctx, esign.CreateRequest{
		Title:   "Authorization to release medical records: " + in.ProviderName,
		Signers: []esign.Signer{{Name: c.ClientName, Phone: signerPhone}},
		Fields:  map[string]string{"provider_name": in.ProviderName, "client_name": c.ClientName},
		Metadata: map[string]string{
			"case_id":     in.CaseID,
			"provider_id": in.ProviderID,
		},
	})
	a.observe("esign", start)
	if err != nil {
		return "", rejection(err)
	}

	if err := a.Store.CreateRecordsRequest(ctx, modal.RecordsRequest{
		ID:         req.ID,
		CaseID:     in.CaseID,
		ProviderID: in.ProviderID,
	}); err != nil {
		return "", err
	}
	activity.GetLogger(ctx).Info("authorization created", "caseID", in.CaseID, "providerID", in.ProviderID, "requestID", req.ID)
	return req.ID, nil
}

// PollSignature reads the signature state once. Settled states are written to the store.
func (a *Activities) PollSignature(ctx context.Context, requestID string) (modal.SignatureState, error) {
	start := time.Now()
	req, err := a.ESign.GetRequest(ctx, requestID)
	a.observe("esign", start)
	if err != nil {
		return modal.SignatureState{}, rejection(err)
	}
	a.Metrics.SignaturePolls.WithLabelValues(req.Status).Inc()

	if !req.Terminal() {
		return modal.SignatureState{}, nil
	}

	status := modal.SignatureDeclined
	switch req.Status {
	case esign.StatusCompleted:
		status = modal.SignatureSigned
	case esign.StatusExpired:
		status = modal.SignatureExpired
	}
	if err := a.Store.UpdateSignatureStatus(ctx, requestID, status, req.SignedAt); err != nil {
		return modal.SignatureState{}, err
	}
	return modal.SignatureState{Done: true, Signed: req.Signed()}, nil
}

// GetProviderContact returns the provider with its verified contact channels.
func (a *Activities) GetProviderContact(ctx context.Context, providerID string) (modal.Provider, error) {
	p, err := a.Store.GetProvider(ctx, providerID)
	if err != nil {
		return modal.Provider{}, err
	}
	return *p, nil
}

// signedRequest loads the records request and its signed document. An already dispatched
// request reports its dispatch id so a retried activity does not send twice.
func (a *Activities) signedRequest(ctx context.Context, requestID string) (*modal.RecordsRequest, string, error) {
	rr, err := a.Store.GetRecordsRequest(ctx, requestID)
	if err != nil {
		return nil, "", err
	}
	if rr.SignatureStatus != modal.SignatureSigned {
		err := eris.Errorf("activities: records request %s is %s", requestID, rr.SignatureStatus)
		return nil, "", temporal.NewNonRetryableApplicationError(err.Error(), ErrNotSigned, err)
	}
	if rr.DispatchID != "" {
		return rr, "", nil
	}
	sig, err := a.ESign.GetRequest(ctx, requestID)
	if err != nil {
		return nil, "", rejection(err)
	}
	return rr, sig.DocumentURL, nil
}

// DispatchFax faxes the signed authorization to contact.
func (a *Activities) DispatchFax(ctx context.Context, in modal.DispatchInput) (string, error) {
	rr, docURL, err := a.signedRequest(ctx, in.RequestID)
	if err != nil {
		return "", err
	}
	if rr.DispatchID != "" {
		return rr.DispatchID, nil
	}
	to, err := phone.Normalize(in.Contact)
	if err != nil {
		return "", temporal.NewNonRetryableApplicationError(err.Error(), ErrPlatformRejection, err)
	}

	start := time.Now()
	resp, err := a.Fax.Send(ctx, fax.SendRequest{
		To:       to,
		From:     a.Settings.FaxFrom,
		MediaURL: docURL,
		Subject:  "Medical records request",
	})
	a.observe("fax", start)
	a.Metrics.RecordsDispatch.WithLabelValues(string(modal.ChannelFax), resultLabel(err)).Inc()
	if err != nil {
		return "", rejection(err)
	}

	if err := a.Store.MarkRecordsDispatched(ctx, in.RequestID, modal.ChannelFax, resp.ID); err != nil {
		return "", err
	}
	activity.GetLogger(ctx).Info("records request faxed", "requestID", in.RequestID, "faxID", resp.ID)
	return resp.ID, nil
}

// DispatchEmail emails the signed authorization to contact.
func (a *Activities) DispatchEmail(ctx context.Context, in modal.DispatchInput) (string, error) {
	rr, docURL, err := a.signedRequest(ctx, in.RequestID)
	if err != nil {
		return "", err
	}
	if rr.DispatchID != "" {
		return rr.DispatchID, nil
	}

	start := time.Now()
	resp, err := a.Email.Send(ctx, email.Message{
		To:      in.Contact,
		From:    a.Settings.EmailFrom,
		Subject: "Medical records request",
		Text: "Please find attached a signed HIPAA authorization for the release of our client's " +
			"medical records. Reply to this address with the records or any questions.",
		Attachments: []email.Attachment{{Filename: "authorization.pdf", URL: docURL}},
	})
	a.observe("email", start)
	a.Metrics.RecordsDispatch.WithLabelValues(string(modal.ChannelEmail), resultLabel(err)).Inc()
	if err != nil {
		return "", rejection(err)
	}

	if err := a.Store.MarkRecordsDispatched(ctx, in.RequestID, modal.ChannelEmail, resp.MessageID); err != nil {
		return "", err
	}
	activity.GetLogger(ctx).Info("records request emailed", "requestID", in.RequestID, "messageID", resp.MessageID)
	return resp.MessageID, nil
}

// PlaceFollowUpCall has the follow-up agent call the provider's office about the request.
func (a *Activities) PlaceFollowUpCall(ctx context.Context, in modal.FollowUpCallInput) (string, error) {
	to, err := phone.Normalize(in.Phone)
	if err != nil {
		return "", temporal.NewNonRetryableApplicationError(err.Error(), ErrPlatformRejection, err)
	}

	start := time.Now()
	resp, err := a.Voice.PlaceCall(ctx, voice.CallRequest{
		AgentID:    a.Settings.FollowUpAgentID,
		ToNumber:   to,
		FromNumber: a.Settings.VoiceFrom,
		Metadata: map[string]string{
			"case_id":       in.CaseID,
			"provider_id":   in.ProviderID,
			"provider_name": in.ProviderName,
			"request_id":    in.RequestID,
			"workflow_id":   in.WorkflowID,
			"purpose":       modal.CallPurposeFollowUp,
		},
	})
	a.observe("voice", start)
	a.Metrics.CallsPlaced.WithLabelValues(modal.CallPurposeFollowUp, resultLabel(err)).Inc()
	if err != nil {
		return "", rejection(err)
	}

	if err := a.Store.CreateCall(ctx, modal.CallRecord{
		ConversationID: resp.ConversationID,
		CaseID:         in.CaseID,
		WorkflowID:     in.WorkflowID,
		Purpose:        modal.CallPurposeFollowUp,
	}); err != nil {
		activity.GetLogger(ctx).Warn("record follow-up call failed", "conversationID", resp.ConversationID, "error", err)
	}
	return resp.ConversationID, nil
}
