package core

import (
	"context"
	"runtime"
	"sync"
)

// RenderThread owns a dedicated goroutine, locked to its OS thread, that is
// the bound execution context of a RenderTaskRunner. Every accepted post
// wakes the loop, which then runs one DrainPending pass.
//
// Use it when the host does not already have a render loop that can call
// DrainPending itself, or when GPU driver calls need a stable OS thread.
type RenderThread struct {
	runner *RenderTaskRunner

	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

var _ SwitchObserver = (*RenderThread)(nil)

// NewRenderThread starts the loop and returns once the runner is bound to it.
// config.OnPost, if set, is still called after the loop is woken.
func NewRenderThread(gpu GPUState, config *RunnerConfig) *RenderThread {
	cfg := config.withDefaults()
	t := &RenderThread{
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	userOnPost := cfg.OnPost
	cfg.OnPost = func() {
		t.Wake()
		if userOnPost != nil {
			userOnPost()
		}
	}
	cfg.AutoBind = false
	t.runner = NewRenderTaskRunner(gpu, &cfg)

	bound := make(chan struct{})
	go t.loop(bound)
	<-bound

	return t
}

// Runner returns the runner drained by this thread.
func (t *RenderThread) Runner() *RenderTaskRunner {
	return t.runner
}

// PostTask posts task to the runner.
func (t *RenderThread) PostTask(task Task) {
	t.runner.PostTask(task)
}

// PostTaskNamed posts a named task to the runner.
func (t *RenderThread) PostTaskNamed(name string, task Task) {
	t.runner.PostTaskNamed(name, task)
}

// PostTaskForGPU posts a GPU-only task to the runner.
func (t *RenderThread) PostTaskForGPU(task Task) {
	t.runner.PostTaskForGPU(task)
}

// Wake requests a drain pass. It never blocks.
func (t *RenderThread) Wake() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// OnSyncSwitchUpdate wakes the loop when the GPU comes back so parked GPU
// tasks are replayed without waiting for the next post.
func (t *RenderThread) OnSyncSwitchUpdate(isGPUDisabled bool) {
	if !isGPUDisabled {
		t.Wake()
	}
}

func (t *RenderThread) loop(bound chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.stopped)

	if err := t.runner.BindToCurrentThread(); err != nil {
		panic(err)
	}
	close(bound)

	for {
		select {
		case <-t.stop:
			return
		case <-t.wake:
			t.runner.DrainPending()
		}
	}
}

// WaitIdle blocks until every task posted before the call has been
// dispatched. It returns ErrRunnerClosed if the runner is or becomes closed
// before that happens.
//
// Calling WaitIdle from a task on this thread would deadlock; it returns
// ErrContextViolation instead.
func (t *RenderThread) WaitIdle(ctx context.Context) error {
	if t.runner.IsClosed() {
		return ErrRunnerClosed
	}
	if t.runner.RunsTasksOnCurrentThread() {
		return ErrContextViolation
	}

	done := make(chan struct{})
	t.runner.PostTaskNamed("wait-idle", TaskFunc(func(bool) {
		close(done)
	}))

	select {
	case <-done:
		return nil
	case <-t.runner.shutdownCh:
		return ErrRunnerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the runner down, discarding pending tasks, then terminates the
// loop. Called from outside the thread it waits for the in-flight task to
// finish; called from a task it returns immediately and the loop exits after
// that task returns. Stop is idempotent.
func (t *RenderThread) Stop() {
	t.once.Do(func() {
		t.runner.Shutdown()
		close(t.stop)
	})
	if !t.runner.RunsTasksOnCurrentThread() {
		<-t.stopped
	}
}
