package workflows

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"case-outreach-service/internal/modal"
)

// instance records one workflow execution in the registrar store.
type instance struct {
	id string
}

func instanceParams(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// registerChild records a child before it starts so the hierarchy is visible even if the
// child never runs.
func registerChild(ctx workflow.Context, id, name, parentID, caseID string, params any) error {
	return workflow.ExecuteActivity(withStore(ctx), a.RegisterInstance, modal.RegisterInstanceInput{
		ID:        id,
		Name:      name,
		ParentID:  parentID,
		EntityRef: caseID,
		Params:    instanceParams(params),
	}).Get(ctx, nil)
}

// registerSelf makes sure the running workflow has a registrar record. The parent is
// taken from the workflow info; an existing record keeps its original parent.
func registerSelf(ctx workflow.Context, name, caseID string, params any) (*instance, error) {
	info := workflow.GetInfo(ctx)
	parentID := ""
	if info.ParentWorkflowExecution != nil {
		parentID = info.ParentWorkflowExecution.ID
	}
	id := info.WorkflowExecution.ID
	if err := registerChild(ctx, id, name, parentID, caseID, params); err != nil {
		return nil, err
	}
	return &instance{id: id}, nil
}

// status updates the instance's human-readable phase. Failures are logged only.
func (i *instance) status(ctx workflow.Context, message string) {
	if err := workflow.ExecuteActivity(withStore(ctx), a.UpdateInstanceStatus, i.id, message).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("update instance status failed", "instanceID", i.id, "error", err)
	}
}

// finish writes the terminal record. It runs on a disconnected context so a cancelled
// workflow still records that it was terminated.
func (i *instance) finish(ctx workflow.Context, err error) {
	status, msg := modal.InstanceCompleted, ""
	if err != nil {
		status, msg = modal.InstanceFailed, errorMessage(err)
		var canceled *temporal.CanceledError
		if errors.As(err, &canceled) || temporal.IsCanceledError(ctx.Err()) {
			status = modal.InstanceTerminated
		}
	}
	i.finishWith(ctx, status, msg)
}

func (i *instance) finishWith(ctx workflow.Context, status modal.InstanceStatus, msg string) {
	dctx, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()
	if err := workflow.ExecuteActivity(withStore(dctx), a.MarkInstanceTerminal, i.id, status, msg).Get(dctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("mark instance terminal failed", "instanceID", i.id, "error", err)
	}
}

// errorMessage prefers an application error's own message over the wrapped chain.
func errorMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		if appErr.Type() != "" {
			return appErr.Type() + ": " + appErr.Message()
		}
		return appErr.Message()
	}
	return err.Error()
}

func failure(errType, format string, args ...any) error {
	return temporal.NewNonRetryableApplicationError(fmt.Sprintf(format, args...), errType, nil)
}
