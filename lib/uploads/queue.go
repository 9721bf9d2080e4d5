package uploads

import "sync"

// queuedUpload is a transfer waiting for a free slot.
type queuedUpload struct {
	taskID  string
	startFn func()
}

// Queue bounds the number of concurrently in-flight uploads. A bulk
// submission beyond the cap waits in FIFO order; each task identity is
// either active or pending, never both.
type Queue struct {
	maxConcurrent int
	active        map[string]bool // task ID -> transferring
	pending       []queuedUpload
	mu            sync.Mutex
}

// NewQueue creates an upload queue with the given concurrency cap.
func NewQueue(maxConcurrent int) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Queue{
		maxConcurrent: maxConcurrent,
		active:        make(map[string]bool),
		pending:       make([]queuedUpload, 0),
	}
}

// Enqueue registers a transfer and returns its queue position.
// Returns 0 if the transfer starts immediately, >0 if queued.
func (q *Queue) Enqueue(taskID string, startFn func()) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.active) < q.maxConcurrent {
		q.active[taskID] = true
		go startFn()
		return 0
	}

	q.pending = append(q.pending, queuedUpload{taskID: taskID, startFn: startFn})
	return len(q.pending)
}

// MarkComplete releases a transfer's slot and promotes the next queued one.
func (q *Queue) MarkComplete(taskID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.active, taskID)

	if len(q.pending) > 0 && len(q.active) < q.maxConcurrent {
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.active[next.taskID] = true
		go next.startFn()
	}
}

// Position returns the 1-based queue position for a task, or nil if the
// task is transferring or unknown.
func (q *Queue) Position(taskID string) *int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active[taskID] {
		return nil
	}
	for i, item := range q.pending {
		if item.taskID == taskID {
			pos := i + 1
			return &pos
		}
	}
	return nil
}

// ActiveCount returns the number of transfers currently in flight.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// PendingCount returns the number of queued transfers.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
