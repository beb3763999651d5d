package agent

import (
	"context"
)

// ScriptedAgent runs a caller-supplied function. Test double for exercising
// the runner without real workers.
type ScriptedAgent struct {
	Fn func(ctx context.Context, req Request) (any, error)
}

func (s ScriptedAgent) Execute(ctx context.Context, req Request) (any, error) {
	return s.Fn(ctx, req)
}

// DryRunAgent simulates a conversion stage without doing any work, so a
// pipeline can be exercised end to end before real LLM-backed agents are
// wired in. A planner configured with Units reports them as the
// conversion_units of its result, which drives task spawning downstream.
type DryRunAgent struct {
	Name  string
	Units []string
}

func (d DryRunAgent) Execute(ctx context.Context, req Request) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := map[string]any{
		"agent":     d.Name,
		"task_id":   req.TaskID,
		"simulated": true,
	}
	if len(d.Units) > 0 {
		out["conversion_units"] = d.Units
	}
	return out, nil
}
