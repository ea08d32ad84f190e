package core

import (
	"time"
)

// Rejection reasons reported to RejectedTaskHandler and Metrics.
const (
	RejectReasonShutdown = "shutdown"
	RejectReasonNilTask  = "nil_task"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// The runner recovers the panic, reports it here, and moves on to the next task.
//
// Implementations are called on the runner's bound goroutine.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - runnerName: The name of the task runner where the panic occurred
	// - taskID: The id assigned to the task when it was posted
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(runnerName string, taskID TaskID, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics at error level.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic value and stack.
func (h *DefaultPanicHandler) HandlePanic(runnerName string, taskID TaskID, panicInfo any, stackTrace []byte) {
	loggerOrDefault(h.Logger).Error("task panicked",
		F("runner", runnerName),
		F("task_id", taskID.String()),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Methods should be non-blocking and fast; they run on the render context.
type Metrics interface {
	// RecordTaskDuration records how long a task took and which GPU state it saw.
	RecordTaskDuration(runnerName string, gpuDisabled bool, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(runnerName string, panicInfo any)

	// RecordQueueDepth records the pending queue depth at the start of a drain pass.
	RecordQueueDepth(runnerName string, depth int)

	// RecordTaskRejected records that a post was dropped.
	RecordTaskRejected(runnerName string, reason string)

	// RecordTasksDiscarded records tasks dropped without running at shutdown.
	RecordTasksDiscarded(runnerName string, count int)

	// RecordTaskDeferred records a GPU-only task parked while the GPU was disabled.
	RecordTaskDeferred(runnerName string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(runnerName string, gpuDisabled bool, duration time.Duration) {
}
func (m *NilMetrics) RecordTaskPanic(runnerName string, panicInfo any)    {}
func (m *NilMetrics) RecordQueueDepth(runnerName string, depth int)       {}
func (m *NilMetrics) RecordTaskRejected(runnerName string, reason string) {}
func (m *NilMetrics) RecordTasksDiscarded(runnerName string, count int)   {}
func (m *NilMetrics) RecordTaskDeferred(runnerName string)                {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a post is dropped, either because the
// runner is shutting down or because the task was nil. Producers are never
// told; this hook is the only place a rejection is visible.
//
// Implementations should be thread-safe as they run on the producer's goroutine.
type RejectedTaskHandler interface {
	HandleRejectedTask(runnerName string, reason string)
}

// DefaultRejectedTaskHandler logs rejected tasks at debug level.
// Producers racing shutdown is expected, so this is not a warning.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(runnerName string, reason string) {
	loggerOrDefault(h.Logger).Debug("task rejected", F("runner", runnerName), F("reason", reason))
}

// =============================================================================
// RunnerConfig: Configuration for RenderTaskRunner
// =============================================================================

// RunnerConfig holds configuration options for RenderTaskRunner.
// All handlers are optional; if not provided, default implementations will be used.
type RunnerConfig struct {
	// Name labels logs, metrics and stats.
	Name string

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a post is dropped. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger defaults to a zerolog-backed logger on stderr.
	Logger Logger

	// HistoryCapacity bounds the execution history ring buffer.
	HistoryCapacity int

	// MaxGPUDeferred bounds the number of GPU-only tasks parked while the GPU is disabled.
	MaxGPUDeferred int

	// LenientAffinity logs and ignores a context violation instead of
	// panicking. Leave it unset in debug and test builds.
	LenientAffinity bool

	// AutoBind binds the runner to the goroutine of the first DrainPending call.
	AutoBind bool

	// OnPost is called after every accepted post, on the producer's goroutine.
	// RenderThread uses it to wake its loop.
	OnPost func()
}

// DefaultRunnerConfig returns a config with default handlers.
func DefaultRunnerConfig() *RunnerConfig {
	logger := NewDefaultLogger()
	return &RunnerConfig{
		PanicHandler:        &DefaultPanicHandler{Logger: logger},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{Logger: logger},
		Logger:              logger,
		HistoryCapacity:     defaultTaskHistoryCapacity,
		MaxGPUDeferred:      defaultMaxGPUDeferred,
	}
}

// withDefaults returns a copy of c with every unset field filled in.
func (c *RunnerConfig) withDefaults() RunnerConfig {
	var out RunnerConfig
	if c != nil {
		out = *c
	}
	if out.Logger == nil {
		out.Logger = NewDefaultLogger()
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{Logger: out.Logger}
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.RejectedTaskHandler == nil {
		out.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: out.Logger}
	}
	if out.HistoryCapacity < 1 {
		out.HistoryCapacity = defaultTaskHistoryCapacity
	}
	if out.MaxGPUDeferred < 1 {
		out.MaxGPUDeferred = defaultMaxGPUDeferred
	}
	return out
}
