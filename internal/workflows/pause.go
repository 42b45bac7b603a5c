package workflows

import (
	"go.temporal.io/sdk/workflow"

	"case-outreach-service/internal/modal"
)

// pauseGate is a per-instance pause flag driven by the pause and resume signals. Pausing
// one instance never pauses its children.
type pauseGate struct {
	paused bool
	reason string
	j      *journal
}

func newPauseGate(ctx workflow.Context, j *journal) *pauseGate {
	g := &pauseGate{j: j}
	pauseCh := workflow.GetSignalChannel(ctx, PauseSignal)
	resumeCh := workflow.GetSignalChannel(ctx, ResumeSignal)

	workflow.Go(ctx, func(ctx workflow.Context) {
		for {
			sel := workflow.NewSelector(ctx)
			sel.AddReceive(pauseCh, func(c workflow.ReceiveChannel, _ bool) {
				var sig modal.PauseSignal
				c.Receive(ctx, &sig)
				g.paused, g.reason = true, sig.Reason
				j.add(ctx, "PAUSED", "instance paused", map[string]any{"reason": sig.Reason})
			})
			sel.AddReceive(resumeCh, func(c workflow.ReceiveChannel, _ bool) {
				var sig modal.ResumeSignal
				c.Receive(ctx, &sig)
				g.paused, g.reason = false, ""
				j.add(ctx, "RESUMED", "instance resumed", map[string]any{"by": sig.ResumedBy})
			})
			sel.Select(ctx)
		}
	})
	return g
}

// check blocks while the instance is paused. Call it before every side-effecting step.
func (g *pauseGate) check(ctx workflow.Context) error {
	if !g.paused {
		return nil
	}
	workflow.GetLogger(ctx).Info("paused, waiting for resume", "reason", g.reason)
	return workflow.Await(ctx, func() bool { return !g.paused })
}
