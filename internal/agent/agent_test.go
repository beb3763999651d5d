package agent

import (
	"context"
	"testing"
)

// TestRegistry verifies register/lookup/replace behavior.
func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Get("analysis"); ok {
		t.Error("Get on empty registry reported a hit")
	}

	first := DryRunAgent{Name: "first"}
	second := DryRunAgent{Name: "second"}
	r.Register("analysis", first)
	r.Register("planning", second)

	a, ok := r.Get("analysis")
	if !ok {
		t.Fatal("registered agent not found")
	}
	if a.(DryRunAgent).Name != "first" {
		t.Errorf("Get returned %q, want %q", a.(DryRunAgent).Name, "first")
	}

	// Re-registering replaces.
	r.Register("analysis", second)
	a, _ = r.Get("analysis")
	if a.(DryRunAgent).Name != "second" {
		t.Error("Register did not replace the previous agent")
	}

	types := r.Types()
	if len(types) != 2 || types[0] != "analysis" || types[1] != "planning" {
		t.Errorf("Types() = %v, want sorted [analysis planning]", types)
	}
}

// TestDryRunAgent verifies the simulated result shape.
func TestDryRunAgent(t *testing.T) {
	planner := DryRunAgent{Name: "conversion_planner", Units: []string{"blocks", "items"}}

	result, err := planner.Execute(context.Background(), Request{TaskID: "plan", Attempt: 1})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	m := result.(map[string]any)
	if m["task_id"] != "plan" || m["simulated"] != true {
		t.Errorf("result = %v", m)
	}
	units := m["conversion_units"].([]string)
	if len(units) != 2 {
		t.Errorf("conversion_units = %v, want 2 units", units)
	}

	// Agents without units omit the key.
	analyzer := DryRunAgent{Name: "mod_analyzer"}
	result, _ = analyzer.Execute(context.Background(), Request{TaskID: "analyze"})
	if _, ok := result.(map[string]any)["conversion_units"]; ok {
		t.Error("analyzer result carries conversion_units")
	}

	// Cancelled context fails fast.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := planner.Execute(ctx, Request{TaskID: "plan"}); err == nil {
		t.Error("Execute() with cancelled context returned nil error")
	}
}
