package graph

import "errors"

// Definition errors. Compile joins every problem it finds, so callers should
// test with errors.Is rather than comparing directly.
var (
	ErrNoTrigger            = errors.New("workflow has no trigger node")
	ErrMultipleTriggers     = errors.New("workflow has more than one trigger node")
	ErrDuplicateNodeID      = errors.New("duplicate node id")
	ErrUnknownNodeReference = errors.New("edge references unknown node")
	ErrAmbiguousEdge        = errors.New("ambiguous outgoing edge")
	ErrCycleWithoutWait     = errors.New("cycle without an intervening wait node")
	ErrInvalidNode          = errors.New("invalid node")
)
