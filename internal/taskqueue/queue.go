// Package taskqueue provides an unbounded FIFO queue of deferred tasks.
//
// Any number of goroutines may hold the Sender; exactly one consumer drains
// the Receiver, normally from an event-loop tick.
package taskqueue

import (
	"errors"
	"sync"
)

// Task is a deferred unit of work. It runs exactly once.
type Task func()

var (
	// ErrReceiverClosed is returned when sending after the receiver is gone.
	ErrReceiverClosed = errors.New("taskqueue: receiver closed")
	// ErrNilTask is returned when sending a nil task.
	ErrNilTask = errors.New("taskqueue: task is required")
)

type entry struct {
	run  Task
	drop func()
}

type queue struct {
	mu     sync.Mutex
	tasks  []entry
	head   int
	closed bool
}

// Sender enqueues tasks.
type Sender struct {
	q *queue
}

// Receiver dequeues tasks in the order they were sent.
type Receiver struct {
	q *queue
}

// New returns the two ends of an empty queue.
func New() (*Sender, *Receiver) {
	q := &queue{tasks: make([]entry, 0, 16)}
	return &Sender{q: q}, &Receiver{q: q}
}

// Send appends task to the back of the queue.
func (s *Sender) Send(task Task) error {
	return s.SendWithDrop(task, nil)
}

// SendWithDrop is Send with a hook that runs instead of task if the
// receiver closes before task is received. drop runs on the goroutine that
// calls Close.
func (s *Sender) SendWithDrop(task Task, drop func()) error {
	if task == nil {
		return ErrNilTask
	}
	s.q.mu.Lock()
	defer s.q.mu.Unlock()

	if s.q.closed {
		return ErrReceiverClosed
	}
	s.q.tasks = append(s.q.tasks, entry{run: task, drop: drop})
	return nil
}

// TryRecv pops the oldest task without blocking.
func (r *Receiver) TryRecv() (Task, bool) {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()

	if r.q.head >= len(r.q.tasks) {
		return nil, false
	}
	task := r.q.tasks[r.q.head].run
	r.q.tasks[r.q.head] = entry{}
	r.q.head++

	// Reset once drained so the backing array is reused.
	if r.q.head == len(r.q.tasks) {
		r.q.tasks = r.q.tasks[:0]
		r.q.head = 0
	}
	return task, true
}

// Len reports how many tasks are pending.
func (r *Receiver) Len() int {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return len(r.q.tasks) - r.q.head
}

// Close drops pending tasks, running their drop hooks in send order.
// Later sends fail with ErrReceiverClosed.
func (r *Receiver) Close() {
	r.q.mu.Lock()
	dropped := r.q.tasks[r.q.head:]
	r.q.closed = true
	r.q.tasks = nil
	r.q.head = 0
	r.q.mu.Unlock()

	for _, e := range dropped {
		if e.drop != nil {
			e.drop()
		}
	}
}

// Closed reports whether Close has been called.
func (r *Receiver) Closed() bool {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return r.q.closed
}
