package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"case-outreach-service/internal/activities"
)

// Signal names.
const (
	PauseSignal                = "pause"
	ResumeSignal               = "resume"
	UserResponseSignal         = "user_response"
	CallCompletedSignal        = "call_completed"
	VerificationResolvedSignal = "verification_resolved"
)

// Query names.
const (
	StateQuery    = "state"
	AuditLogQuery = "audit_log"
)

// Terminal failure types.
const (
	ErrNoContact           = "NoContactAfterMaxAttempts"
	ErrVerificationTimeout = "VerificationTimeout"
	ErrSignatureTimeout    = "SignatureTimeout"
	ErrSignatureDeclined   = "SignatureDeclined"
	ErrNoContactMethod     = "NoContactMethod"
	ErrExtractionFailed    = "ExtractionFailed"
)

// Workflow IDs are derived from the case so webhooks can address them directly.
func CaseWorkflowID(caseID string) string { return "case-" + caseID }

func OutreachWorkflowID(caseID string) string { return CaseWorkflowID(caseID) + "-outreach" }

func VerificationWorkflowID(caseID string) string { return CaseWorkflowID(caseID) + "-verification" }

func RecordsWorkflowID(caseID, providerID string) string {
	return fmt.Sprintf("%s-records-%s", CaseWorkflowID(caseID), providerID)
}

// a is only used for activity method references; workflows never call it directly.
var a *activities.Activities

// withMessaging is for outbound messages and document dispatch: one extra attempt after a
// fixed backoff, never after a platform rejection.
func withMessaging(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        5 * time.Second,
			BackoffCoefficient:     1.0,
			MaximumAttempts:        2,
			NonRetryableErrorTypes: []string{activities.ErrPlatformRejection, activities.ErrNotSigned},
		},
	})
}

// withCall is for call placement. A retried call is a second phone call, so there is none.
func withCall(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
}

// withPoll is for read-only status polls.
func withPoll(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 20 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        5 * time.Second,
			BackoffCoefficient:     1.0,
			MaximumAttempts:        2,
			NonRetryableErrorTypes: []string{activities.ErrPlatformRejection},
		},
	})
}

// withStore is for registrar and store writes, which are idempotent.
func withStore(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	})
}

// withLLM is for transcript extraction and analysis.
func withLLM(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        10 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{activities.ErrPlatformRejection},
		},
	})
}
