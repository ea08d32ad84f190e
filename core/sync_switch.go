package core

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// GPUState is the read side of the GPU-disabled flag.
// The runner calls IsGPUDisabled once per dispatched task.
type GPUState interface {
	IsGPUDisabled() bool
}

// SwitchObserver is notified after a SyncSwitch changes value.
type SwitchObserver interface {
	OnSyncSwitchUpdate(isGPUDisabled bool)
}

// SwitchHandlers are the branches passed to SyncSwitch.Execute.
// A nil branch is skipped.
type SwitchHandlers struct {
	IfTrue  func()
	IfFalse func()
}

// SyncSwitch is a boolean whose writes are excluded while an Execute handler
// runs.
//
// Exactly one collaborator (the surface lifecycle owner) should call SetSwitch.
// Any number of readers may call IsGPUDisabled or Execute concurrently.
// IsGPUDisabled never takes the lock, so handlers may read the switch or
// dispatch tasks that do.
type SyncSwitch struct {
	mu    sync.RWMutex
	value atomic.Bool

	observersMu sync.Mutex
	observers   []observerEntry
	nextID      uint64
}

type observerEntry struct {
	id       uint64
	observer SwitchObserver
}

var _ GPUState = (*SyncSwitch)(nil)

// NewSyncSwitch creates a switch with the given initial value.
func NewSyncSwitch(initial bool) *SyncSwitch {
	s := &SyncSwitch{}
	s.value.Store(initial)
	return s
}

// IsGPUDisabled returns the current value.
func (s *SyncSwitch) IsGPUDisabled() bool {
	return s.value.Load()
}

// Execute runs one of the handlers while holding the read lock, so the value
// cannot change until the handler returns. Handlers must not call SetSwitch.
func (s *SyncSwitch) Execute(h SwitchHandlers) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.value.Load() {
		if h.IfTrue != nil {
			h.IfTrue()
		}
		return
	}
	if h.IfFalse != nil {
		h.IfFalse()
	}
}

// SetSwitch stores v and notifies observers if the value changed.
// Observers run on the caller's goroutine after the write lock is released.
func (s *SyncSwitch) SetSwitch(v bool) {
	s.mu.Lock()
	changed := s.value.Swap(v) != v
	s.mu.Unlock()

	if !changed {
		return
	}

	s.observersMu.Lock()
	observers := make([]SwitchObserver, 0, len(s.observers))
	for _, e := range s.observers {
		observers = append(observers, e.observer)
	}
	s.observersMu.Unlock()

	for _, o := range observers {
		o.OnSyncSwitchUpdate(v)
	}
}

// AddObserver registers o and returns a func that unregisters exactly this
// registration. Adding the same comparable observer twice is a no-op and
// returns the remover of the first registration. Observers of uncomparable
// types (such as func adapters) are always appended; use the returned func to
// remove them.
func (s *SyncSwitch) AddObserver(o SwitchObserver) (remove func()) {
	if o == nil {
		return func() {}
	}
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	for _, e := range s.observers {
		if sameObserver(e.observer, o) {
			return s.remover(e.id)
		}
	}
	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, observerEntry{id: id, observer: o})
	return s.remover(id)
}

// RemoveObserver unregisters a comparable observer. Uncomparable observers
// never match; remove them with the func returned by AddObserver.
func (s *SyncSwitch) RemoveObserver(o SwitchObserver) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	for i, e := range s.observers {
		if sameObserver(e.observer, o) {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *SyncSwitch) remover(id uint64) func() {
	return func() {
		s.observersMu.Lock()
		defer s.observersMu.Unlock()
		for i, e := range s.observers {
			if e.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// sameObserver compares a and b without panicking on uncomparable dynamic types.
func sameObserver(a, b SwitchObserver) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
