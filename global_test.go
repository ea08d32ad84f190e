package rendertask_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	rendertask "github.com/Swind/render-task-runner"
	"github.com/Swind/render-task-runner/core"
)

// TestGlobalRenderThread verifies the singleton lifecycle
// Given: The global render thread is initialized twice
// When: Tasks are posted before and after flipping the global switch
// Then: One thread serves both, each task sees the flag at run time, and shutdown stops it
func TestGlobalRenderThread(t *testing.T) {
	// Arrange
	rendertask.InitGlobalRenderThread(&rendertask.RunnerConfig{Name: "global", Logger: core.NewNoOpLogger()})
	first := rendertask.GetGlobalRenderThread()
	rendertask.InitGlobalRenderThread(nil)
	if rendertask.GetGlobalRenderThread() != first {
		t.Fatal("second InitGlobalRenderThread replaced the thread")
	}

	var seen [2]atomic.Int32 // 1 = enabled, 2 = disabled
	record := func(i int) rendertask.Task {
		return rendertask.TaskFunc(func(isGPUDisabled bool) {
			if isGPUDisabled {
				seen[i].Store(2)
				return
			}
			seen[i].Store(1)
		})
	}

	// Act
	rendertask.PostTask(record(0))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := first.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	rendertask.GlobalGPUSwitch().SetSwitch(true)
	rendertask.PostTask(record(1))
	if err := first.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}

	// Assert
	if seen[0].Load() != 1 || seen[1].Load() != 2 {
		t.Fatalf("seen = [%d %d], want [1 2]", seen[0].Load(), seen[1].Load())
	}

	rendertask.ShutdownGlobalRenderThread()
	rendertask.ShutdownGlobalRenderThread()
	if first.Runner().State() != rendertask.StateShutdown {
		t.Fatalf("State() = %v, want shutdown", first.Runner().State())
	}

	defer func() {
		if recover() == nil {
			t.Fatal("GetGlobalRenderThread after shutdown did not panic")
		}
	}()
	rendertask.GetGlobalRenderThread()
}

// TestNewRenderThread_ObservesSwitch verifies the wrapper registers the thread as observer
func TestNewRenderThread_ObservesSwitch(t *testing.T) {
	sw := rendertask.NewSyncSwitch(true)
	thread := rendertask.NewRenderThread(sw, &rendertask.RunnerConfig{Logger: core.NewNoOpLogger()})
	defer thread.Stop()

	done := make(chan bool, 1)
	thread.PostTaskForGPU(rendertask.TaskFunc(func(isGPUDisabled bool) { done <- isGPUDisabled }))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := thread.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}

	sw.SetSwitch(false)

	select {
	case disabled := <-done:
		if disabled {
			t.Fatal("parked GPU task ran with the GPU disabled")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("parked GPU task never ran after the GPU came back")
	}
}
