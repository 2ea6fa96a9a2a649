package pipeline

import "context"

// Stage names.
const (
	StageAnalyze           = "analyze"
	StageGenerateImage     = "generate_image"
	StageGenerateLinkedIn  = "generate_linkedin"
	StageGenerateInstagram = "generate_instagram"
	StageGenerateWordPress = "generate_wordpress"
	StageWaitForApproval   = "wait_for_approval"
	StageApplyFeedback     = "apply_feedback"
	StageFinalize          = "finalize"
)

// StageFunc is a unit of pipeline work. It reads the current state and
// returns a partial update containing only the fields it changed.
type StageFunc func(ctx context.Context, state WorkflowState) (Patch, error)

// StageDef declares one stage of the fixed pipeline topology.
type StageDef struct {
	// Name identifies the stage; must be unique within the table.
	Name string
	// Deps are the stages that must complete before this one is eligible.
	Deps []string
	// SuspendBefore marks the human-review boundary: the engine
	// checkpoints and returns control before invoking this stage.
	SuspendBefore bool
}

// generatorStages are the platform fan-out stages, in table order.
var generatorStages = []string{
	StageGenerateLinkedIn,
	StageGenerateInstagram,
	StageGenerateWordPress,
}

// defaultStages is the pipeline topology: analysis feeds the image, the
// image feeds three parallel platform generators, and all three fan in
// at the approval boundary.
func defaultStages() []StageDef {
	return []StageDef{
		{Name: StageAnalyze},
		{Name: StageGenerateImage, Deps: []string{StageAnalyze}},
		{Name: StageGenerateLinkedIn, Deps: []string{StageGenerateImage}},
		{Name: StageGenerateInstagram, Deps: []string{StageGenerateImage}},
		{Name: StageGenerateWordPress, Deps: []string{StageGenerateImage}},
		{Name: StageWaitForApproval, SuspendBefore: true, Deps: generatorStages},
		{Name: StageApplyFeedback, Deps: []string{StageWaitForApproval}},
		{Name: StageFinalize, Deps: []string{StageWaitForApproval}},
	}
}

// validateStages checks a stage table and its function registry for
// structural problems. Called once at engine construction.
func validateStages(stages []StageDef, funcs map[string]StageFunc) error {
	if len(stages) == 0 {
		return &StageTableError{Stage: "", Reason: "no stages defined"}
	}

	names := make(map[string]bool, len(stages))
	suspendCount := 0
	for _, def := range stages {
		if def.Name == "" {
			return &StageTableError{Stage: "", Reason: "stage with empty name"}
		}
		if names[def.Name] {
			return &StageTableError{Stage: def.Name, Reason: "duplicate stage"}
		}
		names[def.Name] = true
		if def.SuspendBefore {
			suspendCount++
		}
	}
	if suspendCount != 1 {
		return &StageTableError{Stage: "", Reason: "exactly one suspend point required"}
	}

	for _, def := range stages {
		for _, dep := range def.Deps {
			if !names[dep] {
				return &StageTableError{Stage: def.Name, Reason: "unknown dependency " + dep}
			}
			if dep == def.Name {
				return &StageTableError{Stage: def.Name, Reason: "stage depends on itself"}
			}
		}
		if _, ok := funcs[def.Name]; !ok {
			return &StageTableError{Stage: def.Name, Reason: "no stage function registered"}
		}
	}

	return nil
}
