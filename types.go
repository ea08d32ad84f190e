package rendertask

import "github.com/Swind/render-task-runner/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the rendertask package for most use cases.

// Task is a deferred unit of work told at run time whether the GPU is disabled.
type Task = core.Task

// TaskFunc adapts a function to Task.
type TaskFunc = core.TaskFunc

// TaskPoster accepts tasks; both runners and render threads implement it.
type TaskPoster = core.TaskPoster

// GPUState is the read side of the GPU-disabled flag.
type GPUState = core.GPUState

// SyncSwitch is the lock-guarded GPU-disabled cell.
type SyncSwitch = core.SyncSwitch

// SwitchHandlers are the branches for SyncSwitch.Execute.
type SwitchHandlers = core.SwitchHandlers

// SwitchObserver hears about SyncSwitch changes.
type SwitchObserver = core.SwitchObserver

// RenderTaskRunner is the FIFO runner drained on one bound goroutine.
type RenderTaskRunner = core.RenderTaskRunner

// RenderThread is a dedicated OS-locked goroutine that drains a runner.
type RenderThread = core.RenderThread

// RunnerConfig configures handlers and limits of a runner.
type RunnerConfig = core.RunnerConfig

// RunnerState is the lifecycle state of a runner.
type RunnerState = core.RunnerState

// RunnerStats is a point-in-time runner snapshot.
type RunnerStats = core.RunnerStats

// Lifecycle states
const (
	StateActive       RunnerState = core.StateActive
	StateShuttingDown RunnerState = core.StateShuttingDown
	StateShutdown     RunnerState = core.StateShutdown
)

// Sentinel errors
var (
	ErrRunnerClosed     = core.ErrRunnerClosed
	ErrContextViolation = core.ErrContextViolation
)

// NewSyncSwitch creates a GPU-disabled switch with the given initial value.
func NewSyncSwitch(gpuDisabled bool) *SyncSwitch {
	return core.NewSyncSwitch(gpuDisabled)
}

// NewRenderTaskRunner creates an unbound runner. The caller must bind it with
// BindToCurrentThread on the goroutine that will call DrainPending.
func NewRenderTaskRunner(gpu GPUState, config *RunnerConfig) *RenderTaskRunner {
	return core.NewRenderTaskRunner(gpu, config)
}

// NewRenderThread starts a render thread reading gpu.
// If gpu is a *SyncSwitch, the thread is registered as its observer so parked
// GPU tasks replay as soon as the GPU comes back.
func NewRenderThread(gpu GPUState, config *RunnerConfig) *RenderThread {
	thread := core.NewRenderThread(gpu, config)
	if sw, ok := gpu.(*SyncSwitch); ok {
		sw.AddObserver(thread)
	}
	return thread
}

// PostTaskAndReply runs task on target and then posts reply to replyRunner.
var PostTaskAndReply = core.PostTaskAndReply

// RunNowOrPostTask runs task inline when possible, otherwise posts it.
var RunNowOrPostTask = core.RunNowOrPostTask
