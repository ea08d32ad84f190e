package core

import (
	"sync"
	"testing"
	"time"
)

// dispatch is one observed Run call.
type dispatch struct {
	Name        string
	GPUDisabled bool
}

type recorder struct {
	mu    sync.Mutex
	calls []dispatch
}

func (r *recorder) task(name string) Task {
	return TaskFunc(func(isGPUDisabled bool) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, dispatch{Name: name, GPUDisabled: isGPUDisabled})
	})
}

func (r *recorder) snapshot() []dispatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]dispatch, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *recorder) assert(t *testing.T, want ...dispatch) {
	t.Helper()
	got := r.snapshot()
	if len(got) != len(want) {
		t.Fatalf("dispatches = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatch[%d] = %+v, want %+v (all: %+v)", i, got[i], want[i], got)
		}
	}
}

type panicRecord struct {
	Runner string
	TaskID TaskID
	Info   any
}

type panicRecorder struct {
	mu      sync.Mutex
	records []panicRecord
}

func (p *panicRecorder) HandlePanic(runnerName string, taskID TaskID, panicInfo any, stackTrace []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, panicRecord{Runner: runnerName, TaskID: taskID, Info: panicInfo})
}

func (p *panicRecorder) all() []panicRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]panicRecord(nil), p.records...)
}

type rejectRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (r *rejectRecorder) HandleRejectedTask(runnerName string, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *rejectRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.reasons...)
}

// newBoundRunner returns a runner bound to the test goroutine.
func newBoundRunner(t *testing.T, gpu GPUState, cfg *RunnerConfig) *RenderTaskRunner {
	t.Helper()
	if cfg == nil {
		cfg = &RunnerConfig{}
	}
	if cfg.Logger == nil {
		cfg.Logger = NewNoOpLogger()
	}
	runner := NewRenderTaskRunner(gpu, cfg)
	if err := runner.BindToCurrentThread(); err != nil {
		t.Fatalf("BindToCurrentThread() error = %v", err)
	}
	return runner
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
