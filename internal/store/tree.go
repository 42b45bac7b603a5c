package store

import (
	"context"

	"case-outreach-service/internal/modal"
)

// RunningDescendants walks the instance tree below root breadth first and returns the ids
// of descendants that are still running. Finished instances are still walked through.
func RunningDescendants(ctx context.Context, st Store, root string) ([]string, error) {
	var out []string
	queue := []string{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		children, err := st.ListChildInstances(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			queue = append(queue, c.ID)
			if c.Status == modal.InstanceRunning {
				out = append(out, c.ID)
			}
		}
	}
	return out, nil
}

// InstanceNode is one process instance with its children, for display.
type InstanceNode struct {
	modal.ProcessInstance
	Children []*InstanceNode `json:"children,omitempty"`
}

// InstanceTree arranges a case's instances under their parents. Instances whose parent is
// not part of the case become roots.
func InstanceTree(ctx context.Context, st Store, caseID string) ([]*InstanceNode, error) {
	instances, err := st.ListCaseInstances(ctx, caseID)
	if err != nil {
		return nil, err
	}
	nodes := make(map[string]*InstanceNode, len(instances))
	for _, p := range instances {
		nodes[p.ID] = &InstanceNode{ProcessInstance: p}
	}
	var roots []*InstanceNode
	for _, p := range instances {
		n := nodes[p.ID]
		if parent, ok := nodes[p.ParentID]; ok && p.ParentID != "" {
			parent.Children = append(parent.Children, n)
			continue
		}
		roots = append(roots, n)
	}
	return roots, nil
}
