package core

import (
	"sync"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
)

const defaultMaxGPUDeferred = 16

// gpuDeferredStore parks GPU-only tasks while the GPU is disabled.
// Items keep their parking order and are released as a batch.
type gpuDeferredStore struct {
	mu    sync.Mutex
	items *linkedlistqueue.Queue
	limit int
}

func newGPUDeferredStore(limit int) *gpuDeferredStore {
	if limit < 1 {
		limit = defaultMaxGPUDeferred
	}
	return &gpuDeferredStore{
		items: linkedlistqueue.New(),
		limit: limit,
	}
}

// park stores item. When the store is full the oldest item is evicted and
// returned so the caller can run its fallback path.
func (s *gpuDeferredStore) park(item TaskItem) (TaskItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted TaskItem
	var ok bool
	if s.items.Size() >= s.limit {
		if v, found := s.items.Dequeue(); found {
			evicted, ok = v.(TaskItem), true
		}
	}
	s.items.Enqueue(item)
	return evicted, ok
}

// release removes and returns every parked item in parking order.
func (s *gpuDeferredStore) release() []TaskItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.items.Empty() {
		return nil
	}
	out := make([]TaskItem, 0, s.items.Size())
	for {
		v, ok := s.items.Dequeue()
		if !ok {
			break
		}
		out = append(out, v.(TaskItem))
	}
	return out
}

func (s *gpuDeferredStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Size()
}

// clear drops every parked item and returns how many were dropped.
func (s *gpuDeferredStore) clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.items.Size()
	s.items.Clear()
	return n
}
