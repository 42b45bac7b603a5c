package modal

import "time"

// UserResponse is delivered when the client replies to an outreach message.
type UserResponse struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// CallCompletionData reports how one outbound call ended.
type CallCompletionData struct {
	ConversationID string `json:"conversationId"`
	TalkedToHuman  bool   `json:"talkedToHuman"`
	Failed         bool   `json:"failed"`
	FailureReason  string `json:"failureReason,omitempty"`
}

// VerificationResolution is a reviewer's decision on one verification request.
type VerificationResolution struct {
	VerificationID string       `json:"verificationId"`
	Approved       bool         `json:"approved"`
	ContactInfo    *ContactInfo `json:"contactInfo,omitempty"`
	Actor          string       `json:"actor,omitempty"`
	ResolvedAt     time.Time    `json:"resolvedAt"`
}

type PauseSignal struct {
	Reason string `json:"reason,omitempty"`
}

type ResumeSignal struct {
	ResumedBy string `json:"resumedBy,omitempty"`
}

// CallStatus is the answer to polling a call's outcome from the store or the voice platform.
type CallStatus struct {
	Completed     bool   `json:"completed"`
	TalkedToHuman bool   `json:"talkedToHuman"`
	Failed        bool   `json:"failed"`
	FailureReason string `json:"failureReason,omitempty"`
}
