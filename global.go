package rendertask

import (
	"sync"
)

// =============================================================================
// Global Render Thread Helper (Singleton)
// =============================================================================

var (
	globalRenderThread *RenderThread
	globalSwitch       *SyncSwitch
	globalMu           sync.Mutex
)

// InitGlobalRenderThread starts the process-wide render thread with the GPU
// initially enabled. Calling it again is a no-op.
func InitGlobalRenderThread(config *RunnerConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRenderThread != nil {
		return // Already initialized
	}

	globalSwitch = NewSyncSwitch(false)
	globalRenderThread = NewRenderThread(globalSwitch, config)
}

// GetGlobalRenderThread returns the global render thread.
// It panics if InitGlobalRenderThread has not been called.
func GetGlobalRenderThread() *RenderThread {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRenderThread == nil {
		panic("global render thread not initialized. Call InitGlobalRenderThread() first.")
	}
	return globalRenderThread
}

// GlobalGPUSwitch returns the switch read by the global render thread.
// The surface lifecycle owner flips it when the GPU becomes (un)available.
func GlobalGPUSwitch() *SyncSwitch {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalSwitch == nil {
		panic("global render thread not initialized. Call InitGlobalRenderThread() first.")
	}
	return globalSwitch
}

// ShutdownGlobalRenderThread stops the global render thread, discarding
// pending tasks.
func ShutdownGlobalRenderThread() {
	globalMu.Lock()
	thread, sw := globalRenderThread, globalSwitch
	globalRenderThread, globalSwitch = nil, nil
	globalMu.Unlock()

	if thread == nil {
		return
	}
	sw.RemoveObserver(thread)
	thread.Stop()
}

// PostTask posts task to the global render thread.
func PostTask(task Task) {
	GetGlobalRenderThread().PostTask(task)
}

// PostTaskForGPU posts a GPU-only task to the global render thread.
func PostTaskForGPU(task Task) {
	GetGlobalRenderThread().PostTaskForGPU(task)
}
