package models

import "time"

// ExecutionStatus is the lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"   // Waiting to be started or resumed
	ExecutionStatusRunning   ExecutionStatus = "running"   // Claimed by a worker
	ExecutionStatusCompleted ExecutionStatus = "completed" // Reached the end of a path
	ExecutionStatusStopped   ExecutionStatus = "stopped"   // Ended by a stop automation node
	ExecutionStatusFailed    ExecutionStatus = "failed"    // Ended by an unrecoverable persistence error
)

// IsTerminal reports whether no further steps may run.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusStopped, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// Execution is one traversal of a workflow definition for one subject.
type Execution struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	TenantID       string          `json:"tenant_id"`
	SubjectID      string          `json:"subject_id"`
	ChannelID      string          `json:"channel_id"`
	CurrentNodeID  string          `json:"current_node_id"`
	Status         ExecutionStatus `json:"status"`
	ScheduledFor   *time.Time      `json:"scheduled_for,omitempty"`
	ContextData    map[string]any  `json:"context_data,omitempty"`
	ClaimToken     string          `json:"claim_token,omitempty"`
	ClaimExpiresAt *time.Time      `json:"claim_expires_at,omitempty"`
	Error          string          `json:"error,omitempty"`
	Steps          int             `json:"steps"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// IsDue reports whether the scheduler may claim the execution at now: a pending
// execution whose due time has passed, or a running one whose claim lease expired.
func (e *Execution) IsDue(now time.Time) bool {
	switch e.Status {
	case ExecutionStatusPending:
		return e.ScheduledFor != nil && !e.ScheduledFor.After(now)
	case ExecutionStatusRunning:
		return e.ClaimExpiresAt != nil && e.ClaimExpiresAt.Before(now)
	default:
		return false
	}
}

// Clone returns a copy that can be mutated without touching e.
func (e *Execution) Clone() *Execution {
	clone := *e

	if e.ContextData != nil {
		clone.ContextData = make(map[string]any, len(e.ContextData))
		for k, v := range e.ContextData {
			clone.ContextData[k] = v
		}
	}

	return &clone
}

// Claim marks an execution as owned by one worker until ExpiresAt.
type Claim struct {
	Token     string
	Now       time.Time
	ExpiresAt time.Time
}
