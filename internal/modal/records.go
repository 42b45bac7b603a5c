package modal

import "time"

type SignatureStatus string

const (
	SignatureUnsigned SignatureStatus = "unsigned"
	SignatureSigned   SignatureStatus = "signed"
	SignatureDeclined SignatureStatus = "declined"
	SignatureExpired  SignatureStatus = "expired"
)

type DispatchChannel string

const (
	ChannelFax   DispatchChannel = "fax"
	ChannelEmail DispatchChannel = "email"
)

// RecordsRequest is the authorization-to-release artifact for one provider.
type RecordsRequest struct {
	ID              string          `json:"id"`
	CaseID          string          `json:"caseId"`
	ProviderID      string          `json:"providerId"`
	SignatureStatus SignatureStatus `json:"signatureStatus"`
	SignedAt        *time.Time      `json:"signedAt,omitempty"`
	Channel         DispatchChannel `json:"channel,omitempty"`
	DispatchID      string          `json:"dispatchId,omitempty"`
	DispatchedAt    *time.Time      `json:"dispatchedAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// SignatureState is the e-signature platform's answer to one poll.
type SignatureState struct {
	Done   bool `json:"done"`
	Signed bool `json:"signed"`
}

// CreateAuthorizationInput identifies the provider an authorization is created for.
type CreateAuthorizationInput struct {
	CaseID       string `json:"caseId"`
	ProviderID   string `json:"providerId"`
	ProviderName string `json:"providerName"`
}

// DispatchInput sends a signed authorization over one channel.
type DispatchInput struct {
	CaseID     string `json:"caseId"`
	ProviderID string `json:"providerId"`
	RequestID  string `json:"requestId"`
	Contact    string `json:"contact"`
}

// FollowUpCallInput asks the voice platform to call a provider's office.
type FollowUpCallInput struct {
	CaseID       string `json:"caseId"`
	ProviderID   string `json:"providerId"`
	ProviderName string `json:"providerName"`
	Phone        string `json:"phone"`
	RequestID    string `json:"requestId"`
	WorkflowID   string `json:"workflowId"`
}
