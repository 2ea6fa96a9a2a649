package pipeline

// Decision is the routing outcome at the approval boundary.
type Decision string

// Routing decisions.
const (
	// DecisionFinalize routes an approved run to the finalize stage.
	DecisionFinalize Decision = "finalize"
	// DecisionRegenerate routes a rejected run into the feedback loop.
	DecisionRegenerate Decision = "regenerate"
	// DecisionWait keeps the run suspended at the approval boundary.
	DecisionWait Decision = "wait"
)

// Route maps approval status to the next step. Anything other than an
// explicit approve or reject, including statuses this version has never
// seen, stays at the suspend point rather than erroring.
func Route(state WorkflowState) Decision {
	switch state.ApprovalStatus {
	case StatusApproved:
		return DecisionFinalize
	case StatusRejected:
		return DecisionRegenerate
	default:
		return DecisionWait
	}
}
