package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"
)

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"rendertask"}, args...))
	return stdout.String(), stderr.String(), err
}

func TestConfigCommand_PrintsDefaults(t *testing.T) {
	out, _, err := runApp(t, "config")
	if err != nil {
		t.Fatalf("config error = %v", err)
	}
	for _, want := range []string{"runner:", "name: render", "max_gpu_deferred: 16", "producers: 4"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigCommand_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("runner: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := runApp(t, "--config", path, "config")
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("config error = %v, want load config failure", err)
	}
}

// TestSimulateCommand_RunsEveryTask verifies the simulation accounts for every post
// Given: Two producers posting 50 tasks each, a quarter GPU-only
// When: simulate runs to completion with a fast-flapping GPU switch
// Then: Every posted task ran exactly once and nothing was dropped
func TestSimulateCommand_RunsEveryTask(t *testing.T) {
	out, _, err := runApp(t, "simulate",
		"--producers", "2",
		"--tasks", "50",
		"--toggle-interval", "1ms",
		"--gpu-ratio", "0.25",
		"--log-level", "error",
	)
	if err != nil {
		t.Fatalf("simulate error = %v", err)
	}

	for _, want := range []string{
		"posted: 100",
		"ran: 100 (",
		"panicked: 0, rejected: 0, discarded: 0",
		"runner: render (active)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSimulateCommand_InvalidFlags(t *testing.T) {
	tests := [][]string{
		{"simulate", "--producers", "0"},
		{"simulate", "--gpu-ratio", "2"},
		{"simulate", "--toggle-interval", "10us"},
		{"simulate", "--log-level", "loud"},
	}
	for _, args := range tests {
		if _, _, err := runApp(t, args...); err == nil {
			t.Errorf("%v: error = nil", args)
		}
	}
}
