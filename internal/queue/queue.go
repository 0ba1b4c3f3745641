// Package queue implements the main serial queue
// All state changes and callbacks to the app are done on this queue, in order, one at a time
package queue

import "sync"

// Queue runs functions one by one in the order they were dispatched
type Queue struct {
	mu     sync.Mutex
	tasks  []func()
	notify chan struct{}
	closed bool
	done   chan struct{}
}

// New creates a queue and starts running it
func New() *Queue {
	q := &Queue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.notify
			continue
		}
		f := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		f()
	}
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dispatch adds f to the queue without waiting for it to run
// It never blocks, it returns false if the queue is closed
func (q *Queue) Dispatch(f func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, f)
	q.mu.Unlock()
	q.wake()
	return true
}

// Sync runs f on the queue and waits for it to finish
// It must not be called from the queue itself
// It returns false if the queue is closed and f did not run
func (q *Queue) Sync(f func()) bool {
	ran := make(chan struct{})
	if !q.Dispatch(func() {
		defer close(ran)
		f()
	}) {
		return false
	}
	<-ran
	return true
}

// Close stops accepting new functions and waits until the already dispatched ones have run
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
	<-q.done
}
