package core

import "github.com/google/uuid"

// Task is a single deferred unit of work.
//
// Run is called exactly once by the runner on its bound execution context.
// isGPUDisabled reports whether GPU-backed operations must be skipped for this
// dispatch; the value is read when the task starts, not when it was posted.
//
// A Task has no error channel. Failures must be handled or logged by the
// implementation. Run must not block the render context for unbounded time.
type Task interface {
	Run(isGPUDisabled bool)
}

// TaskFunc adapts an ordinary function to the Task interface.
type TaskFunc func(isGPUDisabled bool)

// Run calls f(isGPUDisabled).
func (f TaskFunc) Run(isGPUDisabled bool) {
	f(isGPUDisabled)
}

// TaskPoster is anything that accepts tasks for later execution.
type TaskPoster interface {
	PostTask(task Task)
}

// TaskID identifies one accepted post in logs and execution history.
type TaskID uuid.UUID

// GenerateTaskID returns a new random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

// IsZero reports whether the id was never assigned.
func (id TaskID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}
