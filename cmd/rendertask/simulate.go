package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	rendertask "github.com/Swind/render-task-runner"
	"github.com/Swind/render-task-runner/core"
	"github.com/Swind/render-task-runner/internal/config"
	obs "github.com/Swind/render-task-runner/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:    "simulate",
		Aliases: []string{"sim"},
		Usage:   "Post tasks from concurrent producers while toggling the GPU switch",

		Flags: []cli.Flag{
			&cli.IntFlag{Name: "producers", Aliases: []string{"p"}, Usage: "Number of producer goroutines"},
			&cli.IntFlag{Name: "tasks", Aliases: []string{"n"}, Usage: "Tasks posted per producer"},
			&cli.DurationFlag{Name: "toggle-interval", Usage: "How often the GPU switch flips"},
			&cli.Float64Flag{Name: "gpu-ratio", Usage: "Fraction of tasks posted as GPU-only"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "Serve Prometheus /metrics on this address"},
			&cli.DurationFlag{Name: "hold", Usage: "Keep the metrics endpoint up this long after the run"},
			&cli.StringFlag{Name: "log-level", Usage: "zerolog level (debug, info, warn, error)"},
		},

		Action: simulateAction,
	}
}

func simulateAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	if err := applySimulateFlags(c, &cfg); err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := core.NewWriterLogger(c.App.ErrWriter, cfg.LogLevel())
	report, err := runSimulation(ctx, cfg, logger, c.Duration("hold"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	report.print(c.App.Writer)
	return nil
}

func applySimulateFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("producers") {
		if c.Int("producers") <= 0 {
			return errors.New("producers must be positive")
		}
		cfg.Simulate.Producers = c.Int("producers")
	}
	if c.IsSet("tasks") {
		if c.Int("tasks") <= 0 {
			return errors.New("tasks must be positive")
		}
		cfg.Simulate.TasksPerProducer = c.Int("tasks")
	}
	if c.IsSet("toggle-interval") {
		d := c.Duration("toggle-interval")
		if d < time.Millisecond {
			return errors.New("toggle-interval must be at least 1ms")
		}
		cfg.Simulate.ToggleIntervalMS = int(d / time.Millisecond)
	}
	if c.IsSet("gpu-ratio") {
		r := c.Float64("gpu-ratio")
		if r < 0 || r > 1 {
			return errors.New("gpu-ratio must be within [0, 1]")
		}
		cfg.Simulate.GPUTaskRatio = r
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
	if c.IsSet("log-level") {
		if _, err := zerolog.ParseLevel(c.String("log-level")); err != nil {
			return fmt.Errorf("log-level: %w", err)
		}
		cfg.Log.Level = c.String("log-level")
	}
	return nil
}

type simulationReport struct {
	Posted      int64
	GPUOnly     int64
	RanEnabled  int64
	RanDisabled int64
	Toggles     int
	Stats       core.RunnerStats
	Elapsed     time.Duration
}

func (r simulationReport) print(w io.Writer) {
	fmt.Fprintf(w, "runner: %s (%s)\n", r.Stats.Name, r.Stats.State)
	fmt.Fprintf(w, "posted: %d (gpu-only: %d)\n", r.Posted, r.GPUOnly)
	fmt.Fprintf(w, "ran: %d (GPU enabled: %d, GPU disabled: %d)\n",
		r.RanEnabled+r.RanDisabled, r.RanEnabled, r.RanDisabled)
	fmt.Fprintf(w, "switch toggles: %d\n", r.Toggles)
	fmt.Fprintf(w, "executed: %d, panicked: %d, rejected: %d, discarded: %d\n",
		r.Stats.Executed, r.Stats.Panicked, r.Stats.Rejected, r.Stats.Discarded)
	fmt.Fprintf(w, "elapsed: %s\n", r.Elapsed.Round(time.Millisecond))
}

func runSimulation(ctx context.Context, cfg config.Config, logger core.Logger, hold time.Duration) (simulationReport, error) {
	var report simulationReport
	start := time.Now()

	reg := prom.NewRegistry()
	exporter, err := obs.NewMetricsExporter(cfg.Metrics.Namespace, reg, obs.ExporterOptions{})
	if err != nil {
		return report, fmt.Errorf("metrics exporter: %w", err)
	}
	poller, err := obs.NewSnapshotPoller(reg, 100*time.Millisecond)
	if err != nil {
		return report, fmt.Errorf("snapshot poller: %w", err)
	}

	gpu := rendertask.NewSyncSwitch(false)
	thread := rendertask.NewRenderThread(gpu, cfg.RunnerConfig(logger, exporter))
	defer thread.Stop()

	poller.AddRunner(cfg.Runner.Name, thread.Runner())
	poller.Start(ctx)
	defer poller.Stop()

	if cfg.Metrics.Addr != "" {
		shutdown := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer shutdown()
	}

	var ranEnabled, ranDisabled, posted, gpuOnly atomic.Int64
	cost := cfg.TaskCost()
	work := rendertask.TaskFunc(func(isGPUDisabled bool) {
		if cost > 0 {
			time.Sleep(cost)
		}
		if isGPUDisabled {
			ranDisabled.Add(1)
			return
		}
		ranEnabled.Add(1)
	})

	producers, prodCtx := errgroup.WithContext(ctx)
	for p := range cfg.Simulate.Producers {
		producers.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(p), 0x5eed))
			for i := range cfg.Simulate.TasksPerProducer {
				if err := prodCtx.Err(); err != nil {
					return err
				}
				name := fmt.Sprintf("producer-%d/%d", p, i)
				if rng.Float64() < cfg.Simulate.GPUTaskRatio {
					thread.Runner().PostTaskForGPUNamed(name, work)
					gpuOnly.Add(1)
				} else {
					thread.PostTaskNamed(name, work)
				}
				posted.Add(1)
			}
			return nil
		})
	}

	stopToggle := make(chan struct{})
	toggleDone := make(chan struct{})
	toggles := 0
	go func() {
		defer close(toggleDone)
		ticker := time.NewTicker(cfg.ToggleInterval())
		defer ticker.Stop()
		for {
			select {
			case <-stopToggle:
				return
			case <-ticker.C:
				disabled := !gpu.IsGPUDisabled()
				gpu.SetSwitch(disabled)
				toggles++
				logger.Debug("GPU switch flipped", core.F("disabled", disabled))
			}
		}
	}()

	prodErr := producers.Wait()
	close(stopToggle)
	<-toggleDone

	// Bring the GPU back so parked tasks get their turn.
	gpu.SetSwitch(false)
	if prodErr != nil {
		return report, fmt.Errorf("producers: %w", prodErr)
	}

	// Parked tasks rejoin the queue behind the first barrier.
	for range 2 {
		if err := thread.WaitIdle(ctx); err != nil {
			return report, fmt.Errorf("wait idle: %w", err)
		}
	}

	report = simulationReport{
		Posted:      posted.Load(),
		GPUOnly:     gpuOnly.Load(),
		RanEnabled:  ranEnabled.Load(),
		RanDisabled: ranDisabled.Load(),
		Toggles:     toggles,
		Stats:       thread.Runner().Stats(),
		Elapsed:     time.Since(start),
	}

	if cfg.Metrics.Addr != "" && hold > 0 {
		logger.Info("holding metrics endpoint", core.F("addr", cfg.Metrics.Addr), core.F("hold", hold.String()))
		select {
		case <-time.After(hold):
		case <-ctx.Done():
		}
	}
	return report, nil
}

func serveMetrics(addr string, reg *prom.Registry, logger core.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", core.F("addr", addr), core.F("error", err.Error()))
		}
	}()
	logger.Info("serving metrics", core.F("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
