// Package rendertask schedules deferred work onto a render-capable execution
// context and tells each unit of work, when it runs, whether GPU-backed
// operations must be skipped.
//
// The design follows the task runners of graphics engine embedders: producers
// on any goroutine post tasks, and the one goroutine that owns the render
// context drains them in FIFO order. The GPU-disabled flag is read right
// before each task starts, never when it was posted, so work queued while the
// app was in the foreground learns that the surface is gone by the time it
// runs.
//
// # Quick Start
//
// Start a render thread at application startup:
//
//	rendertask.InitGlobalRenderThread(nil)
//	defer rendertask.ShutdownGlobalRenderThread()
//
// Post work from anywhere:
//
//	rendertask.PostTask(rendertask.TaskFunc(func(isGPUDisabled bool) {
//		if isGPUDisabled {
//			// CPU fallback: decode, drop the upload, etc.
//			return
//		}
//		// Touch GPU resources.
//	}))
//
// The surface lifecycle owner flips the flag:
//
//	rendertask.GlobalGPUSwitch().SetSwitch(true) // app backgrounded
//
// # Key Concepts
//
// Task: one method, Run(isGPUDisabled bool). No error return; a panic is
// recovered by the runner and reported to its PanicHandler.
//
// RenderTaskRunner: the FIFO queue. PostTask is safe from any goroutine.
// DrainPending must be called on the goroutine the runner is bound to, and
// panics with a *core.ContextViolationError otherwise.
//
// RenderThread: a goroutine locked to its OS thread that owns a runner and
// drains it whenever something is posted. Use it when there is no host render
// loop to call DrainPending.
//
// GPU-only tasks: PostTaskForGPU parks a task while the GPU is disabled and
// replays it once the GPU is back. The oldest parked task is run with
// isGPUDisabled set when the store overflows.
//
// # Shutdown
//
// Shutdown discards every pending task without running it. Posts made after
// shutdown are dropped silently and reported only to the RejectedTaskHandler
// and Metrics.
//
// For GPU state derived from a gogpu device see package gpustate; for
// Prometheus metrics see package observability/prometheus.
package rendertask
