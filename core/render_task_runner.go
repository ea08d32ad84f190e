package core

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRunnerClosed is returned by blocking helpers once shutdown has begun.
var ErrRunnerClosed = errors.New("task runner is closed")

// RunnerState is the lifecycle state of a RenderTaskRunner.
type RunnerState int32

const (
	// StateActive accepts posts and dispatches tasks.
	StateActive RunnerState = iota

	// StateShuttingDown rejects posts; pending tasks have been discarded and
	// at most one in-flight task is still running.
	StateShuttingDown

	// StateShutdown is terminal.
	StateShutdown
)

func (s RunnerState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// RenderTaskRunner is a FIFO task queue drained on exactly one goroutine.
//
// Producers call PostTask from any goroutine. The owner of the bound
// goroutine calls DrainPending once per turn; each task is told whether the
// GPU is disabled, with the flag read from GPUState right before the task
// starts.
//
// Shutdown policy: pending tasks are discarded without being run, and posts
// made after shutdown has begun are dropped silently (reported only to the
// RejectedTaskHandler and Metrics).
type RenderTaskRunner struct {
	queue    *TaskQueue
	deferred *gpuDeferredStore
	gpu      GPUState
	checker  ThreadChecker
	history  *executionHistory

	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler
	logger              Logger
	lenientAffinity     bool
	autoBind            bool
	onPost              func()

	// mu orders the state check in post and popIfActive against Shutdown.
	mu       sync.Mutex
	state    atomic.Int32
	draining atomic.Bool

	shutdownCh chan struct{}

	executed   atomic.Int64
	panicked   atomic.Int64
	rejected   atomic.Int64
	discarded  atomic.Int64
	lastTaskAt atomic.Int64 // unix nanos

	nameMu sync.Mutex
	name   string
}

// NewRenderTaskRunner creates an unbound runner reading the GPU flag from gpu.
// A nil gpu means the GPU is never disabled. A nil config uses DefaultRunnerConfig.
func NewRenderTaskRunner(gpu GPUState, config *RunnerConfig) *RenderTaskRunner {
	cfg := config.withDefaults()
	if gpu == nil {
		gpu = NewSyncSwitch(false)
	}
	name := cfg.Name
	if name == "" {
		name = "render"
	}

	return &RenderTaskRunner{
		queue:               NewTaskQueue(),
		deferred:            newGPUDeferredStore(cfg.MaxGPUDeferred),
		gpu:                 gpu,
		history:             newExecutionHistory(cfg.HistoryCapacity),
		panicHandler:        cfg.PanicHandler,
		metrics:             cfg.Metrics,
		rejectedTaskHandler: cfg.RejectedTaskHandler,
		logger:              cfg.Logger,
		lenientAffinity:     cfg.LenientAffinity,
		autoBind:            cfg.AutoBind,
		onPost:              cfg.OnPost,
		shutdownCh:          make(chan struct{}),
		name:                name,
	}
}

// Name returns the name of the task runner
func (r *RenderTaskRunner) Name() string {
	r.nameMu.Lock()
	defer r.nameMu.Unlock()
	return r.name
}

// SetName sets the name of the task runner
func (r *RenderTaskRunner) SetName(name string) {
	r.nameMu.Lock()
	defer r.nameMu.Unlock()
	r.name = name
}

// GPUState returns the flag source this runner reads on every dispatch.
func (r *RenderTaskRunner) GPUState() GPUState {
	return r.gpu
}

// BindToCurrentThread binds the runner to the calling goroutine. Binding
// again from the same goroutine is a no-op; binding from another goroutine
// returns an error wrapping ErrContextViolation.
func (r *RenderTaskRunner) BindToCurrentThread() error {
	if r.checker.Bind() {
		return nil
	}
	return &ContextViolationError{
		Runner:    r.Name(),
		Op:        "BindToCurrentThread",
		BoundID:   r.checker.BoundID(),
		CurrentID: currentGoroutineID(),
	}
}

// RunsTasksOnCurrentThread reports whether the caller is the bound goroutine.
func (r *RenderTaskRunner) RunsTasksOnCurrentThread() bool {
	return r.checker.IsCurrent()
}

// =============================================================================
// Posting
// =============================================================================

// PostTask enqueues task. It never blocks on task execution and is safe to
// call from any goroutine.
func (r *RenderTaskRunner) PostTask(task Task) {
	r.post("", task, false)
}

// PostTaskNamed is PostTask with a name recorded in the execution history.
func (r *RenderTaskRunner) PostTaskNamed(name string, task Task) {
	r.post(name, task, false)
}

// PostTaskForGPU enqueues a task that only makes sense with a live GPU.
// If the GPU is disabled when the task reaches the front of the queue, it is
// parked and re-queued on the first drain pass that sees the GPU enabled.
// Re-queued tasks rejoin at the tail, behind tasks posted while they were
// parked, so GPU tasks are ordered only relative to each other.
// If too many tasks are parked, the oldest is run with isGPUDisabled=true so
// it can take its fallback path.
func (r *RenderTaskRunner) PostTaskForGPU(task Task) {
	r.post("", task, true)
}

// PostTaskForGPUNamed is PostTaskForGPU with a name.
func (r *RenderTaskRunner) PostTaskForGPUNamed(name string, task Task) {
	r.post(name, task, true)
}

func (r *RenderTaskRunner) post(name string, task Task, needsGPU bool) {
	if isNilTask(task) {
		r.reject(RejectReasonNilTask)
		return
	}

	item := TaskItem{
		ID:       GenerateTaskID(),
		Name:     resolveTaskName(task, name),
		Task:     task,
		PostedAt: time.Now(),
		NeedsGPU: needsGPU,
	}

	r.mu.Lock()
	if r.State() != StateActive {
		r.mu.Unlock()
		r.reject(RejectReasonShutdown)
		return
	}
	r.queue.Push(item)
	r.mu.Unlock()

	if r.onPost != nil {
		r.onPost()
	}
}

func (r *RenderTaskRunner) reject(reason string) {
	r.rejected.Add(1)
	name := r.Name()
	r.rejectedTaskHandler.HandleRejectedTask(name, reason)
	r.metrics.RecordTaskRejected(name, reason)
}

func isNilTask(task Task) bool {
	if task == nil {
		return true
	}
	fn, ok := task.(TaskFunc)
	return ok && fn == nil
}

// =============================================================================
// Dispatch (bound goroutine only)
// =============================================================================

// DrainPending runs the tasks that were pending when the pass began, in FIFO
// order, one at a time, on the calling goroutine. It returns the number of
// tasks whose Run was invoked.
//
// It must be called on the bound goroutine. A call from any other goroutine
// panics with a *ContextViolationError, or is logged and ignored when
// LenientAffinity is set. A call from inside a running task is ignored.
//
// A panicking task is recovered, reported to the PanicHandler, and the pass
// continues with the next task.
func (r *RenderTaskRunner) DrainPending() int {
	if !r.enterBoundContext("DrainPending") {
		return 0
	}
	if !r.draining.CompareAndSwap(false, true) {
		r.logger.Warn("reentrant DrainPending ignored", F("runner", r.Name()))
		return 0
	}
	defer r.finishDrain()

	if r.State() != StateActive {
		return 0
	}

	if parked := r.deferred.len(); parked > 0 && !r.gpu.IsGPUDisabled() {
		r.requeueParked()
	}

	n := r.queue.Len()
	r.metrics.RecordQueueDepth(r.Name(), n)

	ran := 0
	for range n {
		item, ok := r.popIfActive()
		if !ok {
			break
		}
		if r.dispatch(item) {
			ran++
		}
	}
	return ran
}

// RunNowOrPost runs task immediately when called on the bound goroutine
// outside of any running task, and posts it otherwise. Inline execution
// follows the same rules as a drained task: fresh flag read, panic recovery,
// history record.
func (r *RenderTaskRunner) RunNowOrPost(task Task) {
	if isNilTask(task) || !r.RunsTasksOnCurrentThread() || r.State() != StateActive {
		r.PostTask(task)
		return
	}
	if !r.draining.CompareAndSwap(false, true) {
		r.PostTask(task)
		return
	}
	defer r.finishDrain()

	r.runTask(TaskItem{
		ID:       GenerateTaskID(),
		Name:     resolveTaskName(task, ""),
		Task:     task,
		PostedAt: time.Now(),
	}, r.gpu.IsGPUDisabled())
}

func (r *RenderTaskRunner) enterBoundContext(op string) bool {
	if r.checker.IsCurrent() {
		return true
	}
	if r.autoBind && !r.checker.IsBound() && r.checker.Bind() {
		return true
	}

	err := &ContextViolationError{
		Runner:    r.Name(),
		Op:        op,
		BoundID:   r.checker.BoundID(),
		CurrentID: currentGoroutineID(),
	}
	if !r.lenientAffinity {
		panic(err)
	}
	r.logger.Error("execution context violation", F("runner", err.Runner), F("error", err.Error()))
	return false
}

func (r *RenderTaskRunner) popIfActive() (TaskItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != StateActive {
		return TaskItem{}, false
	}
	return r.queue.Pop()
}

func (r *RenderTaskRunner) requeueParked() {
	items := r.deferred.release()
	if len(items) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != StateActive {
		r.countDiscarded(len(items))
		return
	}
	r.queue.PushAll(items)
}

// dispatch reads the GPU flag once and either runs item or parks it.
// It reports whether some task's Run was invoked.
func (r *RenderTaskRunner) dispatch(item TaskItem) bool {
	gpuDisabled := r.gpu.IsGPUDisabled()
	if !item.NeedsGPU || !gpuDisabled {
		r.runTask(item, gpuDisabled)
		return true
	}

	r.metrics.RecordTaskDeferred(r.Name())
	evicted, ok := r.deferred.park(item)
	if !ok {
		return false
	}
	r.logger.Debug("GPU task store full, running oldest with GPU disabled",
		F("runner", r.Name()), F("task", evicted.Name))
	r.runTask(evicted, r.gpu.IsGPUDisabled())
	return true
}

func (r *RenderTaskRunner) runTask(item TaskItem, gpuDisabled bool) {
	name := r.Name()
	startedAt := time.Now()
	panicked := false

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				panicked = true
				stack := debug.Stack()
				r.panicked.Add(1)
				r.metrics.RecordTaskPanic(name, rec)
				r.panicHandler.HandlePanic(name, item.ID, rec, stack)
			}
		}()
		item.Task.Run(gpuDisabled)
	}()

	finishedAt := time.Now()
	r.executed.Add(1)
	r.lastTaskAt.Store(finishedAt.UnixNano())
	r.metrics.RecordTaskDuration(name, gpuDisabled, finishedAt.Sub(startedAt))
	r.history.Add(TaskExecutionRecord{
		TaskID:      item.ID,
		Name:        item.Name,
		RunnerName:  name,
		GPUDisabled: gpuDisabled,
		PostedAt:    item.PostedAt,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
		Duration:    finishedAt.Sub(startedAt),
		Panicked:    panicked,
	})
}

func (r *RenderTaskRunner) finishDrain() {
	r.draining.Store(false)
	if r.State() == StateShuttingDown {
		r.markShutdown()
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

// State returns the current lifecycle state.
func (r *RenderTaskRunner) State() RunnerState {
	return RunnerState(r.state.Load())
}

// IsClosed returns true once shutdown has begun.
func (r *RenderTaskRunner) IsClosed() bool {
	return r.State() != StateActive
}

// Shutdown stops accepting posts and discards every pending and parked task
// without running it. A task already running finishes; the runner reaches
// StateShutdown when it returns, or immediately if nothing is running.
// Shutdown may be called from any goroutine, including from a task, and is
// idempotent.
func (r *RenderTaskRunner) Shutdown() {
	r.mu.Lock()
	if r.State() != StateActive {
		r.mu.Unlock()
		return
	}
	r.state.Store(int32(StateShuttingDown))
	r.mu.Unlock()

	r.countDiscarded(r.queue.Clear() + r.deferred.clear())
	r.logger.Info("runner shutting down", F("runner", r.Name()), F("discarded", r.discarded.Load()))

	if !r.draining.Load() {
		r.markShutdown()
	}
}

func (r *RenderTaskRunner) markShutdown() {
	if !r.state.CompareAndSwap(int32(StateShuttingDown), int32(StateShutdown)) {
		return
	}
	r.countDiscarded(r.queue.Clear() + r.deferred.clear())
	close(r.shutdownCh)
	r.logger.Debug("runner shut down", F("runner", r.Name()))
}

func (r *RenderTaskRunner) countDiscarded(n int) {
	if n <= 0 {
		return
	}
	r.discarded.Add(int64(n))
	r.metrics.RecordTasksDiscarded(r.Name(), n)
}

// WaitShutdown blocks until the runner reaches StateShutdown or ctx is done.
func (r *RenderTaskRunner) WaitShutdown(ctx context.Context) error {
	select {
	case <-r.shutdownCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// Observability
// =============================================================================

// PendingCount returns the number of queued tasks, excluding parked GPU tasks.
func (r *RenderTaskRunner) PendingCount() int {
	return r.queue.Len()
}

// DeferredCount returns the number of GPU tasks parked while the GPU is disabled.
func (r *RenderTaskRunner) DeferredCount() int {
	return r.deferred.len()
}

// Stats returns a point-in-time snapshot.
func (r *RenderTaskRunner) Stats() RunnerStats {
	state := r.State()
	stats := RunnerStats{
		Name:        r.Name(),
		State:       state,
		Pending:     r.queue.Len(),
		Deferred:    r.deferred.len(),
		Executed:    r.executed.Load(),
		Panicked:    r.panicked.Load(),
		Rejected:    r.rejected.Load(),
		Discarded:   r.discarded.Load(),
		Closed:      state != StateActive,
		Draining:    r.draining.Load(),
		GPUDisabled: r.gpu.IsGPUDisabled(),
	}
	if ns := r.lastTaskAt.Load(); ns != 0 {
		stats.LastTaskAt = time.Unix(0, ns)
	}
	return stats
}

// RecentTasks returns up to limit execution records, newest first.
func (r *RenderTaskRunner) RecentTasks(limit int) []TaskExecutionRecord {
	return r.history.Recent(limit)
}

// LastTask returns the most recent execution record.
func (r *RenderTaskRunner) LastTask() (TaskExecutionRecord, bool) {
	return r.history.Last()
}
