// Package activities holds every side effect of the case workflows: platform calls,
// store writes and LLM extraction. Workflows reach the outside world only through here.
package activities

import (
	"context"
	"time"

	"go.temporal.io/sdk/temporal"

	"case-outreach-service/internal/metrics"
	"case-outreach-service/internal/modal"
	"case-outreach-service/internal/resilience"
	"case-outreach-service/internal/store"
	"case-outreach-service/pkg/email"
	"case-outreach-service/pkg/esign"
	"case-outreach-service/pkg/fax"
	"case-outreach-service/pkg/npi"
	"case-outreach-service/pkg/sms"
	"case-outreach-service/pkg/voice"
)

// Application error types. Workflows and retry policies match on these.
const (
	ErrPlatformRejection   = "PlatformRejection"
	ErrPlatformUnavailable = "PlatformUnavailable"
	ErrMalformedOutput     = "MalformedOutput"
	ErrNotSigned           = "NotSigned"
)

// Extractor turns transcripts into structured data.
type Extractor interface {
	Providers(ctx context.Context, transcript string) ([]modal.ExtractedProvider, error)
	Assess(ctx context.Context, transcript string) (*modal.CaseAssessment, error)
}

// Settings are the sender identities used on outbound traffic.
type Settings struct {
	VoiceAgentID    string
	FollowUpAgentID string
	VoiceFrom       string
	FaxFrom         string
	EmailFrom       string
}

type Activities struct {
	Store     store.Store
	SMS       sms.Client
	Voice     voice.Client
	Fax       fax.Client
	Email     email.Client
	ESign     esign.Client
	Registry  npi.Client
	Extractor Extractor
	Metrics   *metrics.Metrics
	Settings  Settings
}

// rejection converts a platform rejection into a non-retryable application error so the
// retry policy never repeats the side effect. Transport failures become retryable
// PlatformUnavailable errors. Anything else passes through unchanged.
func rejection(err error) error {
	switch {
	case err == nil:
		return nil
	case resilience.IsRejection(err):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrPlatformRejection, err)
	case resilience.IsTransient(err):
		return temporal.NewApplicationErrorWithCause(err.Error(), ErrPlatformUnavailable, err)
	default:
		return err
	}
}

// resultLabel is the metrics label for a platform call's outcome.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case resilience.IsRejection(err):
		return "rejected"
	case resilience.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}

func (a *Activities) observe(platform string, start time.Time) {
	a.Metrics.ActivityDuration.WithLabelValues(platform).Observe(time.Since(start).Seconds())
}

func toCallStatus(d *voice.CallDetails) modal.CallStatus {
	if !d.Finished() {
		return modal.CallStatus{}
	}
	return modal.CallStatus{
		Completed:     true,
		TalkedToHuman: d.TalkedToHuman(),
		Failed:        d.Status == voice.StatusFailed,
		FailureReason: d.FailureReason,
	}
}

func outcomeLabel(s modal.CallStatus) string {
	switch {
	case s.Failed:
		return "failed"
	case s.TalkedToHuman:
		return "human"
	default:
		return "voicemail"
	}
}
