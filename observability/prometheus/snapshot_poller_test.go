package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/render-task-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type runnerStub struct {
	stats core.RunnerStats
}

func (s runnerStub) Stats() core.RunnerStats { return s.stats }

func TestSnapshotPoller_CollectsRunnerStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddRunner("raster", runnerStub{stats: core.RunnerStats{
		State:       core.StateShutdown,
		Pending:     3,
		Deferred:    2,
		Executed:    10,
		Rejected:    4,
		Discarded:   1,
		Closed:      true,
		GPUDisabled: true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		pending := testutil.ToFloat64(poller.runnerPending.WithLabelValues("raster"))
		executed := testutil.ToFloat64(poller.runnerExecuted.WithLabelValues("raster"))
		return pending == 3 && executed == 10
	})

	if got := testutil.ToFloat64(poller.runnerState.WithLabelValues("raster")); got != 2 {
		t.Fatalf("runner state gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.runnerGPUDisabled.WithLabelValues("raster")); got != 1 {
		t.Fatalf("gpu disabled gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.runnerDeferred.WithLabelValues("raster")); got != 2 {
		t.Fatalf("deferred gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.runnerRejected.WithLabelValues("raster")); got != 4 {
		t.Fatalf("rejected gauge = %v, want 4", got)
	}
}

func TestSnapshotPoller_LiveRunner(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	runner := core.NewRenderTaskRunner(core.NewSyncSwitch(false), &core.RunnerConfig{
		Name:   "raster",
		Logger: core.NewNoOpLogger(),
	})
	runner.PostTask(core.TaskFunc(func(bool) {}))
	runner.PostTask(core.TaskFunc(func(bool) {}))

	poller.AddRunner(runner.Name(), runner)
	poller.Start(context.Background())
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		return testutil.ToFloat64(poller.runnerPending.WithLabelValues("raster")) == 2
	})

	poller.RemoveRunner("raster")
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func TestSnapshotPoller_ReRegisterSameRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	if _, err := NewSnapshotPoller(reg, time.Second); err != nil {
		t.Fatalf("first NewSnapshotPoller failed: %v", err)
	}
	if _, err := NewSnapshotPoller(reg, time.Second); err != nil {
		t.Fatalf("second NewSnapshotPoller failed: %v", err)
	}
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
