package shell

import (
	"context"
	"log/slog"
	"sync"
)

// Loop is the shell's single logical UI thread. Every dispatcher, reconciler
// and bridge call runs on it, so those components need no locks.
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

// NewLoop creates a loop with room for bufferSize queued tasks.
func NewLoop(bufferSize int) *Loop {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Loop{
		tasks: make(chan func(), bufferSize),
		done:  make(chan struct{}),
	}
}

// Run executes posted tasks in order until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	defer l.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case task := <-l.tasks:
			l.runTask(task)
		}
	}
}

func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("shell loop task panicked", "panic", r)
		}
	}()
	task()
}

// Stop ends Run. Tasks posted afterwards are rejected.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.done) })
}

// Post queues task without waiting for it. It blocks while the queue is full.
func (l *Loop) Post(task func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.tasks <- task:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Do runs task on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, task func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		task()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}
