package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// ProgressTracker broadcasts task state snapshots to subscribers, typically
// SSE streams held open by the presentation layer.
type ProgressTracker struct {
	subscribers []chan Task
	last        Task
	hasLast     bool
	closed      bool
	done        chan struct{}
	mu          sync.Mutex
}

func newProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		subscribers: make([]chan Task, 0),
		done:        make(chan struct{}),
	}
}

// Publish records the latest state and fans it out without blocking;
// slow consumers miss intermediate snapshots.
func (p *ProgressTracker) Publish(task Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.last = task
	p.hasLast = true

	for _, ch := range p.subscribers {
		select {
		case ch <- task:
		default:
		}
	}
}

// Subscribe returns a channel that first replays the current state and then
// receives every subsequent snapshot. The channel closes when the tracker
// closes or ctx is done. Subscribing to a closed tracker yields just the
// final state.
func (p *ProgressTracker) Subscribe(ctx context.Context) chan Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Task, 16)
	if p.hasLast {
		ch <- p.last
	}
	if p.closed {
		close(ch)
		return ch
	}

	p.subscribers = append(p.subscribers, ch)
	go func() {
		select {
		case <-ctx.Done():
			p.Unsubscribe(ch)
		case <-p.done:
			// Tracker closed; the channel is already closed.
		}
	}()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (p *ProgressTracker) Unsubscribe(ch chan Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, sub := range p.subscribers {
		if sub == ch {
			p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Close closes every subscriber channel. Called once the task is terminal.
func (p *ProgressTracker) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.done)
	for _, ch := range p.subscribers {
		close(ch)
	}
	p.subscribers = nil
}

// ToSSEReader adapts a subscription channel to an io.ReadCloser emitting
// server-sent events.
func ToSSEReader(ch chan Task) io.ReadCloser {
	return &sseStream{ch: ch}
}

type sseStream struct {
	ch     chan Task
	buffer []byte
}

func (s *sseStream) Read(p []byte) (int, error) {
	if len(s.buffer) > 0 {
		n := copy(p, s.buffer)
		s.buffer = s.buffer[n:]
		return n, nil
	}

	task, ok := <-s.ch
	if !ok {
		return 0, io.EOF
	}

	data, _ := json.Marshal(task)
	s.buffer = []byte(fmt.Sprintf("data: %s\n\n", data))

	n := copy(p, s.buffer)
	s.buffer = s.buffer[n:]
	return n, nil
}

func (s *sseStream) Close() error { return nil }
