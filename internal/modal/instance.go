package modal

import (
	"encoding/json"
	"time"
)

type InstanceStatus string

const (
	InstanceRunning    InstanceStatus = "running"
	InstanceCompleted  InstanceStatus = "completed"
	InstanceFailed     InstanceStatus = "failed"
	InstanceTerminated InstanceStatus = "terminated"
)

func (s InstanceStatus) Terminal() bool {
	return s == InstanceCompleted || s == InstanceFailed || s == InstanceTerminated
}

// ProcessInstance is the registrar's record of one workflow execution.
type ProcessInstance struct {
	ID            string          `json:"id"`
	ParentID      string          `json:"parentId,omitempty"`
	Name          string          `json:"name"`
	EntityRef     string          `json:"entityRef,omitempty"`
	Status        InstanceStatus  `json:"status"`
	StatusMessage string          `json:"statusMessage"`
	Error         string          `json:"error,omitempty"`
	Params        json.RawMessage `json:"params,omitempty"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
}

// RegisterInstanceInput is the registrar activity's argument.
type RegisterInstanceInput struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	ParentID  string          `json:"parentId,omitempty"`
	EntityRef string          `json:"entityRef,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
}
