package domain

import "gorm.io/datatypes"

type PhaseResultKind string

const (
	PhaseCompleted          PhaseResultKind = "completed"
	PhaseAwaitingInput      PhaseResultKind = "awaiting_input"
	PhaseAwaitingBackground PhaseResultKind = "awaiting_background"
	PhaseSkipped            PhaseResultKind = "skipped"
	PhaseErrored            PhaseResultKind = "errored"
)

// PhaseResult is the tagged outcome of running one phase. Handlers convert
// their own failures into an Errored result; errors never cross the
// executor boundary as plain error returns.
type PhaseResult struct {
	Kind   PhaseResultKind `json:"kind"`
	Data   datatypes.JSON  `json:"data,omitempty"`
	Reason string          `json:"reason,omitempty"` // AwaitingInput / AwaitingBackground / Skipped
	Cause  string          `json:"cause,omitempty"`  // Errored
}

func CompletedResult(data datatypes.JSON) PhaseResult {
	return PhaseResult{Kind: PhaseCompleted, Data: data}
}

func AwaitingInputResult(reason string) PhaseResult {
	return PhaseResult{Kind: PhaseAwaitingInput, Reason: reason}
}

func AwaitingBackgroundResult(reason string) PhaseResult {
	return PhaseResult{Kind: PhaseAwaitingBackground, Reason: reason}
}

func SkippedResult(reason string) PhaseResult {
	return PhaseResult{Kind: PhaseSkipped, Reason: reason}
}

func ErroredResult(cause string) PhaseResult {
	return PhaseResult{Kind: PhaseErrored, Cause: cause}
}

type DecisionAction string

const (
	ActionProceed DecisionAction = "PROCEED"
	ActionPause   DecisionAction = "PAUSE"
	ActionRetry   DecisionAction = "RETRY"
	ActionFail    DecisionAction = "FAIL"
)

// Decision is the verdict of a PhaseDecisionProvider for one phase result.
// Immediate asks the orchestrator to chain the next phase within the same
// request; the orchestrator honors at most one hop to bound recursion.
type Decision struct {
	Action     DecisionAction `json:"action"`
	NextPhase  string         `json:"next_phase,omitempty"`
	Immediate  bool           `json:"immediate,omitempty"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning,omitempty"`
}
