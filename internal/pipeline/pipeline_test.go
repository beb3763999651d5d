package pipeline

import (
	"testing"

	"github.com/modforge/porter/internal/taskgraph"
)

func testJob() Job {
	return Job{RunID: "run-1", Archive: "mods/copperworks.jar", MaxRetries: 2}
}

// TestBuildShape verifies stages, priorities and dependency wiring.
func TestBuildShape(t *testing.T) {
	g, err := Build(testJob())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if g.Len() != 6 {
		t.Fatalf("graph has %d tasks, want 6", g.Len())
	}

	wantDeps := map[string][]string{
		StageAnalyze:       {},
		StagePlan:          {StageAnalyze},
		StageTranslate:     {StagePlan},
		StageConvertAssets: {StagePlan},
		StagePackage:       {StageConvertAssets, StageTranslate},
		StageValidate:      {StagePackage},
	}
	wantPriority := map[string]int{
		StageAnalyze:       5,
		StagePlan:          4,
		StageTranslate:     3,
		StageConvertAssets: 3,
		StagePackage:       2,
		StageValidate:      1,
	}

	for _, snap := range g.Snapshots() {
		deps := wantDeps[snap.TaskID]
		if len(snap.Dependencies) != len(deps) {
			t.Errorf("%s dependencies = %v, want %v", snap.TaskID, snap.Dependencies, deps)
			continue
		}
		for i := range deps {
			if snap.Dependencies[i] != deps[i] {
				t.Errorf("%s dependencies = %v, want %v", snap.TaskID, snap.Dependencies, deps)
			}
		}
		if snap.Priority != wantPriority[snap.TaskID] {
			t.Errorf("%s priority = %d, want %d", snap.TaskID, snap.Priority, wantPriority[snap.TaskID])
		}
		if snap.MaxRetries != 2 {
			t.Errorf("%s max_retries = %d, want job budget 2", snap.TaskID, snap.MaxRetries)
		}
	}

	// Only analyze is ready at the start.
	ready := g.ReadyTasks()
	if len(ready) != 1 || ready[0].ID != StageAnalyze {
		t.Errorf("initial ready set = %v, want [analyze]", ready)
	}

	if _, err := g.Validate(); err != nil {
		t.Errorf("freshly built pipeline invalid: %v", err)
	}
}

// TestPlanSpawnsUnits verifies per-unit translation tasks appear when plan
// completes, and that LinkSpawned makes packaging wait for them.
func TestPlanSpawnsUnits(t *testing.T) {
	g, err := Build(testJob())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	link := LinkSpawned(g)

	complete := func(id string, result any) []*taskgraph.Task {
		t.Helper()
		if err := g.MarkTaskStarted(id); err != nil {
			t.Fatalf("MarkTaskStarted(%s) error = %v", id, err)
		}
		spawned, err := g.MarkTaskCompleted(id, result)
		if err != nil {
			t.Fatalf("MarkTaskCompleted(%s) error = %v", id, err)
		}
		return spawned
	}

	complete(StageAnalyze, map[string]any{"mod_loader": "forge"})
	spawned := complete(StagePlan, map[string]any{
		"conversion_units": []string{"block/copper_chair", "item/copper_hammer"},
	})

	if len(spawned) != 2 {
		t.Fatalf("plan spawned %d tasks, want 2", len(spawned))
	}
	if g.Len() != 8 {
		t.Errorf("graph has %d tasks after spawn, want 8", g.Len())
	}
	parent, _ := g.Get(StagePlan)
	link(parent, spawned)

	for _, s := range spawned {
		got, ok := g.Get(s.ID)
		if !ok {
			t.Fatalf("spawned task %q missing from graph", s.ID)
		}
		if got.AgentType != TypeTranslation {
			t.Errorf("%s agent type = %q, want %q", s.ID, got.AgentType, TypeTranslation)
		}
	}

	// Packaging now waits on both units.
	pkg, _ := g.Get(StagePackage)
	if len(pkg.DependsOn) != 4 {
		t.Errorf("package dependencies = %v, want the two stages plus two units", pkg.DependsOn)
	}

	// Drain everything except the units: package must stay blocked.
	complete(StageTranslate, nil)
	complete(StageConvertAssets, nil)
	for _, task := range g.ReadyTasks() {
		if task.ID == StagePackage {
			t.Fatal("package ready before spawned units completed")
		}
	}
	complete("translate:block/copper_chair", nil)
	complete("translate:item/copper_hammer", nil)

	ready := g.ReadyTasks()
	if len(ready) != 1 || ready[0].ID != StagePackage {
		t.Errorf("ready = %v, want [package]", ready)
	}
}

// TestConversionUnits exercises the opaque-result parsing.
func TestConversionUnits(t *testing.T) {
	tests := []struct {
		name   string
		result any
		want   int
	}{
		{"string slice", map[string]any{"conversion_units": []string{"a", "b"}}, 2},
		{"any slice from JSON", map[string]any{"conversion_units": []any{"a", "b", "c"}}, 3},
		{"mixed any slice keeps strings", map[string]any{"conversion_units": []any{"a", 7}}, 1},
		{"missing key", map[string]any{"other": true}, 0},
		{"not a map", "done", 0},
		{"nil result", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConversionUnits(tt.result); len(got) != tt.want {
				t.Errorf("ConversionUnits() = %v, want %d units", got, tt.want)
			}
		})
	}
}
