// Package gpustate derives the GPU-disabled flag from the host's GPU device.
//
// The host (for example a gogpu application) owns the device and hands it to
// the embedder through gpucontext.DeviceProvider. While no provider is
// attached, or the provider has no device or no usable surface format, GPU
// work must be skipped.
package gpustate

import (
	"sync"

	"github.com/Swind/render-task-runner/core"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// DeviceState is a core.GPUState backed by a gpucontext.DeviceProvider.
//
// Attach and Detach are the write side and should be called only by the
// surface lifecycle owner. IsGPUDisabled may be called from any goroutine.
type DeviceState struct {
	mu       sync.RWMutex
	provider gpucontext.DeviceProvider
	mirror   *core.SyncSwitch
}

var _ core.GPUState = (*DeviceState)(nil)

// NewDeviceState creates a state for provider. provider may be nil, in which
// case the GPU starts out disabled.
func NewDeviceState(provider gpucontext.DeviceProvider) *DeviceState {
	return &DeviceState{provider: provider}
}

// IsGPUDisabled reports whether the current provider cannot serve GPU work.
func (s *DeviceState) IsGPUDisabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return disabledFor(s.provider)
}

// Provider returns the attached provider, or nil.
func (s *DeviceState) Provider() gpucontext.DeviceProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

// Attach installs provider, typically after a surface is (re)created.
func (s *DeviceState) Attach(provider gpucontext.DeviceProvider) {
	s.mu.Lock()
	s.provider = provider
	disabled := disabledFor(provider)
	mirror := s.mirror
	s.mu.Unlock()

	if mirror != nil {
		mirror.SetSwitch(disabled)
	}
}

// Detach removes the provider, typically when the surface is torn down or the
// app is backgrounded.
func (s *DeviceState) Detach() {
	s.Attach(nil)
}

// MirrorTo keeps sw in step with this state so that sw's observers (such as a
// core.RenderThread) hear about device changes. sw is updated immediately.
func (s *DeviceState) MirrorTo(sw *core.SyncSwitch) {
	s.mu.Lock()
	s.mirror = sw
	disabled := disabledFor(s.provider)
	s.mu.Unlock()

	if sw != nil {
		sw.SetSwitch(disabled)
	}
}

func disabledFor(p gpucontext.DeviceProvider) bool {
	if p == nil {
		return true
	}
	if p.Device() == nil {
		return true
	}
	return p.SurfaceFormat() == gputypes.TextureFormatUndefined
}
