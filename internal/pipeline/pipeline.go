// Package pipeline builds the task graph for one Java-mod-to-Bedrock
// conversion run: the fixed six-stage backbone plus the callback that
// spawns per-unit translation tasks once planning has discovered what the
// mod actually contains.
package pipeline

import (
	"fmt"

	"github.com/modforge/porter/internal/taskgraph"
)

// Stage task IDs of the standard conversion pipeline.
const (
	StageAnalyze       = "analyze"
	StagePlan          = "plan"
	StageTranslate     = "translate"
	StageConvertAssets = "convert_assets"
	StagePackage       = "package"
	StageValidate      = "validate"
)

// Agent types each stage dispatches to.
const (
	TypeAnalysis    = "analysis"
	TypePlanning    = "planning"
	TypeTranslation = "translation"
	TypeAssets      = "asset_conversion"
	TypePackaging   = "packaging"
	TypeValidation  = "validation"
)

// Stage scheduling priorities. Earlier stages outrank later ones so a
// freshly unblocked analyze always runs before a waiting validate.
const (
	priorityAnalyze   = 5
	priorityPlan      = 4
	priorityTranslate = 3
	priorityAssets    = 3
	priorityPackage   = 2
	priorityValidate  = 1
)

// Job describes one mod conversion run.
type Job struct {
	RunID      string
	Archive    string // path to the Java mod archive
	MaxRetries int    // per-task retry budget
}

// Build constructs the conversion graph:
//
//	analyze -> plan -> {translate, convert_assets} -> package -> validate
//
// The plan task carries a completion callback that spawns one
// translate:<unit> task per conversion unit the planner reports; callers
// running the graph should wire LinkSpawned so packaging waits for them.
func Build(job Job) (*taskgraph.Graph, error) {
	g := taskgraph.New()

	stages := []*taskgraph.Task{
		stageTask(job, StageAnalyze, "mod_analyzer", TypeAnalysis, priorityAnalyze),
		stageTask(job, StagePlan, "conversion_planner", TypePlanning, priorityPlan),
		stageTask(job, StageTranslate, "feature_translator", TypeTranslation, priorityTranslate),
		stageTask(job, StageConvertAssets, "asset_converter", TypeAssets, priorityAssets),
		stageTask(job, StagePackage, "addon_packager", TypePackaging, priorityPackage),
		stageTask(job, StageValidate, "addon_validator", TypeValidation, priorityValidate),
	}
	stages[1].DependsOn = []string{StageAnalyze}
	stages[1].OnComplete = spawnTranslators(job)
	stages[2].DependsOn = []string{StagePlan}
	stages[3].DependsOn = []string{StagePlan}
	stages[4].DependsOn = []string{StageTranslate, StageConvertAssets}
	stages[5].DependsOn = []string{StagePackage}

	for _, t := range stages {
		if !g.AddTask(t) {
			return nil, fmt.Errorf("building pipeline for run %s: could not add stage %q", job.RunID, t.ID)
		}
	}
	return g, nil
}

func stageTask(job Job, stage, agentName, agentType string, priority int) *taskgraph.Task {
	t := taskgraph.NewTask(stage, agentName, agentType, map[string]any{
		"run_id":  job.RunID,
		"archive": job.Archive,
	})
	t.Priority = priority
	t.MaxRetries = job.MaxRetries
	return t
}

// spawnTranslators builds the plan stage's completion callback: one
// translation task per conversion unit, each depending on plan.
func spawnTranslators(job Job) taskgraph.SpawnFunc {
	return func(result any) []*taskgraph.Task {
		units := ConversionUnits(result)
		tasks := make([]*taskgraph.Task, 0, len(units))
		for _, unit := range units {
			t := taskgraph.NewTask(
				StageTranslate+":"+unit,
				"feature_translator",
				TypeTranslation,
				map[string]any{
					"run_id":  job.RunID,
					"archive": job.Archive,
					"unit":    unit,
				},
			)
			t.Priority = priorityTranslate
			t.MaxRetries = job.MaxRetries
			t.DependsOn = []string{StagePlan}
			tasks = append(tasks, t)
		}
		return tasks
	}
}

// ConversionUnits extracts the planner's unit list from its opaque result.
// Anything that is not a map with a conversion_units list yields no units.
func ConversionUnits(result any) []string {
	m, ok := result.(map[string]any)
	if !ok {
		return nil
	}
	switch v := m["conversion_units"].(type) {
	case []string:
		return v
	case []any:
		units := make([]string, 0, len(v))
		for _, u := range v {
			if s, ok := u.(string); ok {
				units = append(units, s)
			}
		}
		return units
	default:
		return nil
	}
}

// LinkSpawned returns a hook that wires spawned translation tasks ahead of
// packaging, so the add-on is not assembled until every unit is done. Meant
// to be installed as the runner's OnSpawn callback.
func LinkSpawned(g *taskgraph.Graph) func(parent *taskgraph.Task, spawned []*taskgraph.Task) {
	return func(parent *taskgraph.Task, spawned []*taskgraph.Task) {
		for _, t := range spawned {
			// Rejected edges (unknown stage, cycle) are safe to ignore;
			// the spawned task still runs, packaging just won't wait.
			_ = g.AddDependency(StagePackage, t.ID)
		}
	}
}
