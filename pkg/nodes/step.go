package nodes

import (
	"time"

	"github.com/dukex/leadflow/pkg/models"
)

// StepKind is what the coordinator must do after a node ran.
type StepKind int

const (
	StepAdvance StepKind = iota
	StepSuspend
	StepTerminate
)

func (k StepKind) String() string {
	switch k {
	case StepAdvance:
		return "advance"
	case StepSuspend:
		return "suspend"
	case StepTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Step is the outcome of executing a single node.
type Step struct {
	Kind StepKind

	// NextNodeID is the node to continue from (Advance) or to resume at (Suspend).
	// A suspended step may carry an empty id when the wait is the last node.
	NextNodeID string

	// ResumeAt is set for Suspend.
	ResumeAt time.Time

	// Status is the terminal status for Terminate.
	Status models.ExecutionStatus
}

// Advance continues synchronously at nodeID.
func Advance(nodeID string) Step {
	return Step{Kind: StepAdvance, NextNodeID: nodeID}
}

// Suspend pauses the execution until resumeAt, resuming at nextNodeID.
func Suspend(nextNodeID string, resumeAt time.Time) Step {
	return Step{Kind: StepSuspend, NextNodeID: nextNodeID, ResumeAt: resumeAt}
}

// Terminate ends the execution with status.
func Terminate(status models.ExecutionStatus) Step {
	return Step{Kind: StepTerminate, Status: status}
}

// Complete ends the execution normally.
func Complete() Step {
	return Terminate(models.ExecutionStatusCompleted)
}
