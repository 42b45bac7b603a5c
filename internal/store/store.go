// Package store persists cases, process instances, providers, verification requests and
// records requests. Every write is a point update keyed by entity id.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"case-outreach-service/internal/modal"
)

// ErrNotFound is wrapped by every lookup that matches no row.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface used by activities and the API.
type Store interface {
	// Cases
	CreateCase(ctx context.Context, c modal.Case) (*modal.Case, error)
	GetCase(ctx context.Context, caseID string) (*modal.Case, error)
	FindOpenCaseByPhone(ctx context.Context, phone string) (*modal.Case, error)
	UpdateCaseStatus(ctx context.Context, caseID string, status modal.CaseStatus, reason string) error
	SetCaseAssessment(ctx context.Context, caseID string, a *modal.CaseAssessment) error

	// Messages
	AddMessage(ctx context.Context, m modal.Message) error
	ListMessages(ctx context.Context, caseID string) ([]modal.Message, error)

	// Calls
	CreateCall(ctx context.Context, c modal.CallRecord) error
	CompleteCall(ctx context.Context, conversationID string, status modal.CallStatus, transcript string) error
	GetCall(ctx context.Context, conversationID string) (*modal.CallRecord, error)

	// Process instances
	RegisterInstance(ctx context.Context, in modal.RegisterInstanceInput) error
	UpdateInstanceStatus(ctx context.Context, instanceID, message string) error
	MarkInstanceTerminal(ctx context.Context, instanceID string, status modal.InstanceStatus, errMsg string) error
	GetInstance(ctx context.Context, instanceID string) (*modal.ProcessInstance, error)
	ListChildInstances(ctx context.Context, parentID string) ([]modal.ProcessInstance, error)
	ListCaseInstances(ctx context.Context, caseID string) ([]modal.ProcessInstance, error)

	// Providers
	CreateProvider(ctx context.Context, p modal.Provider) (*modal.Provider, error)
	GetProvider(ctx context.Context, providerID string) (*modal.Provider, error)
	ListProviders(ctx context.Context, caseID string, state modal.VerificationState) ([]modal.Provider, error)
	SetProviderVerification(ctx context.Context, providerID string, state modal.VerificationState, contact *modal.ContactInfo) error

	// Verification requests
	CreateVerification(ctx context.Context, v modal.VerificationRequest) (*modal.VerificationRequest, error)
	GetVerification(ctx context.Context, verificationID string) (*modal.VerificationRequest, error)
	ListPendingVerifications(ctx context.Context, caseID string) ([]modal.VerificationRequest, error)
	// ResolveVerification moves a pending request to approved or rejected. It reports false
	// when the request was already resolved.
	ResolveVerification(ctx context.Context, verificationID string, approved bool, actor string, at time.Time) (bool, error)

	// Records requests
	CreateRecordsRequest(ctx context.Context, r modal.RecordsRequest) error
	GetRecordsRequest(ctx context.Context, requestID string) (*modal.RecordsRequest, error)
	UpdateSignatureStatus(ctx context.Context, requestID string, status modal.SignatureStatus, signedAt *time.Time) error
	MarkRecordsDispatched(ctx context.Context, requestID string, channel modal.DispatchChannel, dispatchID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
