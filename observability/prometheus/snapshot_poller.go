package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/render-task-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// RunnerSnapshotProvider provides current runner stats snapshots.
type RunnerSnapshotProvider interface {
	Stats() core.RunnerStats
}

// SnapshotPoller periodically exports runner Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	runnersMu sync.RWMutex
	runners   map[string]RunnerSnapshotProvider

	runnerPending     *prom.GaugeVec
	runnerDeferred    *prom.GaugeVec
	runnerExecuted    *prom.GaugeVec
	runnerRejected    *prom.GaugeVec
	runnerDiscarded   *prom.GaugeVec
	runnerState       *prom.GaugeVec
	runnerGPUDisabled *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "rendertask",
			Name:      name,
			Help:      help,
		}, []string{"runner"})
	}

	p := &SnapshotPoller{
		interval:          interval,
		runners:           make(map[string]RunnerSnapshotProvider),
		runnerPending:     gauge("runner_pending", "Pending tasks per runner."),
		runnerDeferred:    gauge("runner_gpu_deferred", "GPU-only tasks parked per runner."),
		runnerExecuted:    gauge("runner_executed", "Runner executed task count snapshot."),
		runnerRejected:    gauge("runner_rejected", "Runner rejected post count snapshot."),
		runnerDiscarded:   gauge("runner_discarded", "Runner discarded task count snapshot."),
		runnerState:       gauge("runner_state", "Runner lifecycle state (0=active, 1=shutting down, 2=shutdown)."),
		runnerGPUDisabled: gauge("runner_gpu_disabled", "GPU-disabled flag as seen by the runner (1=disabled)."),
	}

	for _, vec := range []**prom.GaugeVec{
		&p.runnerPending,
		&p.runnerDeferred,
		&p.runnerExecuted,
		&p.runnerRejected,
		&p.runnerDiscarded,
		&p.runnerState,
		&p.runnerGPUDisabled,
	} {
		registered, err := registerCollector(reg, *vec)
		if err != nil {
			return nil, err
		}
		*vec = registered
	}

	return p, nil
}

// AddRunner adds or replaces a runner snapshot provider by name.
func (p *SnapshotPoller) AddRunner(name string, provider RunnerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "runner")
	p.runnersMu.Lock()
	p.runners[name] = provider
	p.runnersMu.Unlock()
}

// RemoveRunner stops exporting the named runner.
func (p *SnapshotPoller) RemoveRunner(name string) {
	if p == nil {
		return
	}
	name = normalizeLabel(name, "runner")
	p.runnersMu.Lock()
	delete(p.runners, name)
	p.runnersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.runnersMu.RLock()
	defer p.runnersMu.RUnlock()

	for name, provider := range p.runners {
		stats := provider.Stats()
		p.runnerPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.runnerDeferred.WithLabelValues(name).Set(float64(stats.Deferred))
		p.runnerExecuted.WithLabelValues(name).Set(float64(stats.Executed))
		p.runnerRejected.WithLabelValues(name).Set(float64(stats.Rejected))
		p.runnerDiscarded.WithLabelValues(name).Set(float64(stats.Discarded))
		p.runnerState.WithLabelValues(name).Set(float64(stats.State))
		if stats.GPUDisabled {
			p.runnerGPUDisabled.WithLabelValues(name).Set(1)
		} else {
			p.runnerGPUDisabled.WithLabelValues(name).Set(0)
		}
	}
}
