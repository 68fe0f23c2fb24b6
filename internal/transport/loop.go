package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mycobotics/chamberlink/internal/groutine"
)

var (
	// ErrTimeout is returned when a loop operation exceeds its deadline.
	ErrTimeout = errors.New("transport: operation timed out")
	// ErrStopped is returned when work is scheduled on a stopped loop.
	ErrStopped = errors.New("transport: event loop stopped")
	// ErrCanceled is returned for work still pending when the loop stopped.
	ErrCanceled = errors.New("transport: scheduled work canceled")
)

// Handle tracks one unit of scheduled work.
type Handle struct {
	name string
	done chan struct{}
	err  error // written by the loop before done is closed
}

// Wait blocks until the work finishes or timeout elapses.
func (h *Handle) Wait(timeout time.Duration) error {
	select {
	case <-h.done:
		return h.err
	case <-time.After(timeout):
		return ErrTimeout
	}
}

type loopTask struct {
	fn     func() error
	handle *Handle
}

// Loop is a dedicated event-loop goroutine. All host-stack interaction is
// funneled through it so the underlying Bluetooth library only ever sees
// one calling goroutine. Work is scheduled as handles the caller can wait
// on with its own timeout.
type Loop struct {
	logger *logrus.Logger

	tasks chan *loopTask
	quit  chan struct{}
	done  <-chan struct{}

	started atomic.Bool
	stopped atomic.Bool
}

// NewLoop creates an unstarted loop.
func NewLoop(logger *logrus.Logger) *Loop {
	if logger == nil {
		logger = logrus.New()
	}
	return &Loop{
		logger: logger,
		tasks:  make(chan *loopTask, 32),
		quit:   make(chan struct{}),
	}
}

// Start launches the loop goroutine and waits (bounded) for it to be ready.
func (l *Loop) Start(timeout time.Duration) error {
	if l.stopped.Load() {
		return ErrStopped
	}
	if !l.started.CompareAndSwap(false, true) {
		return nil
	}

	ready := make(chan struct{})
	l.done = groutine.GoDone(context.Background(), "transport-loop", func(ctx context.Context) {
		close(ready)
		l.run()
	})

	select {
	case <-ready:
		return nil
	case <-time.After(timeout):
		return ErrTimeout
	}
}

// Schedule submits fn to run on the loop goroutine. The returned handle
// resolves to fn's error, or ErrCanceled if the loop stops first.
func (l *Loop) Schedule(name string, fn func() error) (*Handle, error) {
	if !l.started.Load() || l.stopped.Load() {
		return nil, ErrStopped
	}
	h := &Handle{name: name, done: make(chan struct{})}
	select {
	case l.tasks <- &loopTask{fn: fn, handle: h}:
		return h, nil
	case <-l.quit:
		return nil, ErrStopped
	}
}

// Run is a convenience wrapper: schedule fn and wait up to timeout.
func (l *Loop) Run(name string, timeout time.Duration, fn func() error) error {
	h, err := l.Schedule(name, fn)
	if err != nil {
		return err
	}
	return h.Wait(timeout)
}

// Stop cancels pending work and joins the loop goroutine within timeout.
// Idempotent.
func (l *Loop) Stop(timeout time.Duration) {
	if !l.stopped.CompareAndSwap(false, true) {
		return
	}
	close(l.quit)
	if !l.started.Load() {
		return
	}

	select {
	case <-l.done:
		l.logger.Debug("Event loop stopped")
	case <-time.After(timeout):
		l.logger.WithField("timeout", timeout).Error("Event loop did not stop in time")
	}
}

func (l *Loop) run() {
	for {
		// Quit wins over pending work once both are ready.
		select {
		case <-l.quit:
			l.drain()
			return
		default:
		}

		select {
		case <-l.quit:
			l.drain()
			return
		case t := <-l.tasks:
			l.execute(t)
		}
	}
}

func (l *Loop) execute(t *loopTask) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithFields(logrus.Fields{
				"task":  t.handle.name,
				"panic": r,
			}).Error("Scheduled work panicked")
			t.handle.err = errors.New("transport: scheduled work panicked")
		}
		close(t.handle.done)
	}()
	t.handle.err = t.fn()
}

// drain resolves work that was queued but never ran.
func (l *Loop) drain() {
	for {
		select {
		case t := <-l.tasks:
			t.handle.err = ErrCanceled
			close(t.handle.done)
		default:
			return
		}
	}
}
