package engine

import "errors"

var (
	// ErrWorkflowNotPublished is returned when starting an execution of a draft or unpublished workflow.
	ErrWorkflowNotPublished = errors.New("workflow is not published")

	// ErrStepLimitExceeded marks executions that ran more nodes in one run than Config.MaxStepsPerRun.
	ErrStepLimitExceeded = errors.New("step limit exceeded")

	// ErrNotClaimed is returned when running an execution the caller does not hold a claim on.
	ErrNotClaimed = errors.New("execution is not claimed")

	ErrInvalidStartRequest = errors.New("invalid start request")
)
