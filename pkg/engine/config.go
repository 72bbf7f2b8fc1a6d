package engine

import "time"

const (
	DefaultMaxStepsPerRun = 100
	DefaultClaimTTL       = 5 * time.Minute
	DefaultBatchSize      = 100
)

// Config holds the tunables of the coordinator and the scheduler.
type Config struct {
	// MaxStepsPerRun caps the nodes executed by one RunUntilSuspended call.
	MaxStepsPerRun int

	// ClaimTTL is how long a claim is held before another worker may take the execution over.
	ClaimTTL time.Duration

	// BatchSize is the maximum number of due executions one Tick processes.
	BatchSize int

	// WorkerID identifies this process in lifecycle events and traces.
	WorkerID string
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		MaxStepsPerRun: DefaultMaxStepsPerRun,
		ClaimTTL:       DefaultClaimTTL,
		BatchSize:      DefaultBatchSize,
		WorkerID:       "leadflow",
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()

	if c.MaxStepsPerRun <= 0 {
		c.MaxStepsPerRun = defaults.MaxStepsPerRun
	}

	if c.ClaimTTL <= 0 {
		c.ClaimTTL = defaults.ClaimTTL
	}

	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}

	if c.WorkerID == "" {
		c.WorkerID = defaults.WorkerID
	}

	return c
}
