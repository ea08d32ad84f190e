package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	TaskID      TaskID
	Name        string
	RunnerName  string
	GPUDisabled bool
	PostedAt    time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Duration    time.Duration
	Panicked    bool
}

// RunnerStats represents runtime observability state for a task runner.
type RunnerStats struct {
	Name        string
	State       RunnerState
	Pending     int
	Deferred    int
	Executed    int64
	Panicked    int64
	Rejected    int64
	Discarded   int64
	Closed      bool
	Draining    bool
	GPUDisabled bool
	LastTaskAt  time.Time
}
