package modal

import "time"

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// VerificationRequest is one human review of a provider's contact details. It is resolved
// exactly once.
type VerificationRequest struct {
	ID         string             `json:"id"`
	CaseID     string             `json:"caseId"`
	ProviderID string             `json:"providerId"`
	Status     VerificationStatus `json:"status"`
	Extracted  ContactInfo        `json:"extracted"`
	LookedUp   ContactInfo        `json:"lookedUp"`
	ResolvedBy string             `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time         `json:"resolvedAt,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// AuditEvent is one entry of a workflow's in-memory audit trail.
type AuditEvent struct {
	At      time.Time      `json:"at"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}
