package activities

import (
	"context"

	"case-outreach-service/internal/modal"
)

// RegisterInstance records an instance before its workflow starts. Re-registration is a
// no-op, so retries never move an instance to another parent.
func (a *Activities) RegisterInstance(ctx context.Context, in modal.RegisterInstanceInput) error {
	return a.Store.RegisterInstance(ctx, in)
}

func (a *Activities) UpdateInstanceStatus(ctx context.Context, instanceID, message string) error {
	return a.Store.UpdateInstanceStatus(ctx, instanceID, message)
}

func (a *Activities) MarkInstanceTerminal(ctx context.Context, instanceID string, status modal.InstanceStatus, errMsg string) error {
	return a.Store.MarkInstanceTerminal(ctx, instanceID, status, errMsg)
}
