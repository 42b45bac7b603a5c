package workflows

import (
	"go.temporal.io/sdk/workflow"

	"case-outreach-service/internal/modal"
)

// journal is the in-memory audit trail every orchestrator exposes through AuditLogQuery.
type journal struct {
	events []modal.AuditEvent
}

func newJournal(ctx workflow.Context) (*journal, error) {
	j := &journal{events: make([]modal.AuditEvent, 0)}
	err := workflow.SetQueryHandler(ctx, AuditLogQuery, func() ([]modal.AuditEvent, error) {
		return j.events, nil
	})
	return j, err
}

func (j *journal) add(ctx workflow.Context, kind, message string, data map[string]any) {
	j.events = append(j.events, modal.AuditEvent{
		At:      workflow.Now(ctx),
		Kind:    kind,
		Message: message,
		Data:    data,
	})
}
