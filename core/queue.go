package core

import (
	"sync"
	"time"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// TaskItem is one accepted post waiting in a queue.
type TaskItem struct {
	ID       TaskID
	Name     string
	Task     Task
	PostedAt time.Time

	// NeedsGPU marks tasks posted with PostTaskForGPU.
	NeedsGPU bool
}

// TaskQueue is a mutex-guarded FIFO. Push is safe from any goroutine and
// holds the lock only for the append.
type TaskQueue struct {
	mu    sync.Mutex
	tasks []TaskItem
}

func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		tasks: make([]TaskItem, 0, defaultQueueCap),
	}
}

func (q *TaskQueue) Push(item TaskItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, item)
}

// PushAll appends items in order under a single lock.
func (q *TaskQueue) PushAll(items []TaskItem) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, items...)
}

func (q *TaskQueue) Pop() (TaskItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return TaskItem{}, false
	}

	item := q.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[0] = TaskItem{}
	q.tasks = q.tasks[1:]
	q.maybeCompactLocked()

	return item, true
}

func (q *TaskQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]TaskItem, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]TaskItem, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}

func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *TaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Clear drops every queued item and returns how many were dropped.
func (q *TaskQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.tasks)
	// Create a new slice to release all task references
	q.tasks = make([]TaskItem, 0, defaultQueueCap)
	return n
}
