package modal

// SendMessageInput asks for one outreach text. Template is rendered against the case.
type SendMessageInput struct {
	CaseID   string `json:"caseId"`
	Template string `json:"template"`
	Attempt  int    `json:"attempt"`
}

// PlaceCallInput asks for one outreach call. WorkflowID is stamped on the call so the
// completion webhook can route its signal.
type PlaceCallInput struct {
	CaseID     string `json:"caseId"`
	WorkflowID string `json:"workflowId"`
	Attempt    int    `json:"attempt"`
}

// TranscriptInput points at the conversation to analyse. An empty ConversationID means
// the case's SMS thread is the transcript.
type TranscriptInput struct {
	CaseID         string `json:"caseId"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ResolutionOutcome is the stored, effective result of applying a verification resolution.
type ResolutionOutcome struct {
	VerificationID string `json:"verificationId"`
	ProviderID     string `json:"providerId"`
	Approved       bool   `json:"approved"`
}
