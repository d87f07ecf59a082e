// Package reactor runs tasks one at a time, in submission order, on a single
// goroutine. Session lifecycle changes that must not interleave (starting and
// stopping background jobs) are posted here.
package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"sealpost/internal/domain"
	"sealpost/internal/logging"
)

// Loop is a FIFO task queue with one consumer.
type Loop struct {
	logger *slog.Logger

	mu      sync.Mutex
	tasks   []func()
	wake    chan struct{}
	stopped bool
	done    chan struct{}
}

// New returns a loop; call Run to start consuming.
func New(logger *slog.Logger) *Loop {
	return &Loop{
		logger: logging.Default(logger).With("component", "reactor"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Run consumes tasks until ctx is done or Stop is called. Tasks already
// queued at that point are still run.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		task, stopped := l.next()
		if task != nil {
			l.run(task)
			continue
		}
		if stopped {
			return
		}

		select {
		case <-ctx.Done():
			l.Stop()
		case <-l.wake:
		}
	}
}

// next pops the oldest task. A nil task with stopped set means the queue is
// drained for good: Post refuses work once stopped.
func (l *Loop) next() (task func(), stopped bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tasks) == 0 {
		return nil, l.stopped
	}
	task = l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	return task, l.stopped
}

func (l *Loop) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", "panic", r)
		}
	}()
	task()
}

// Post queues fn. It never blocks.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return domain.ErrLoopStopped
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Call queues fn and waits for its result. If ctx ends first Call returns
// ctx.Err(); fn still runs when its turn comes.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	err := l.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("reactor: task panicked: %v", r)
			}
		}()
		result <- fn()
	})
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new tasks. Run drains what is queued and returns.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }
