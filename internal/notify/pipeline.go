package notify

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mycobotics/chamberlink/internal/groutine"
)

// DefaultPollInterval bounds how long the consumer sleeps between checks
// for a stop signal when the queue is empty.
const DefaultPollInterval = 50 * time.Millisecond

// NotifyFunc delivers one notification. Only the pipeline's consumer
// goroutine ever calls it, serializing all outbound traffic.
type NotifyFunc func(characteristic string, devices []string) error

// Config tunes the pipeline.
type Config struct {
	Capacity             int
	EnqueueTimeout       time.Duration
	Policy               Policy
	SlowPublishThreshold time.Duration
	PollInterval         time.Duration
}

// Pipeline owns the bounded queue and its single consumer goroutine.
type Pipeline struct {
	cfg     Config
	queue   *Queue
	notify  NotifyFunc
	logger  *logrus.Logger
	metrics *Metrics

	accepting atomic.Bool
	running   atomic.Bool
	stop      chan struct{}
	done      <-chan struct{}
}

// New creates a pipeline delivering through fn.
func New(cfg Config, fn NotifyFunc, logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.New()
	}
	if fn == nil {
		fn = func(string, []string) error { return nil }
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyPriority
	}

	metrics := &Metrics{}
	p := &Pipeline{
		cfg:     cfg,
		queue:   NewQueue(cfg.Capacity, cfg.Policy, metrics, logger),
		notify:  fn,
		logger:  logger,
		metrics: metrics,
		stop:    make(chan struct{}),
	}
	p.accepting.Store(true)
	return p
}

// Enqueue submits a notification task. devices is snapshotted; the caller
// may reuse the slice. Returns true if the task was queued.
func (p *Pipeline) Enqueue(characteristic string, priority Priority, devices []string) bool {
	if !p.accepting.Load() {
		p.metrics.addDropped(priority)
		return false
	}
	task := Task{
		Priority:       priority,
		EnqueuedAt:     time.Now(),
		Characteristic: characteristic,
		Devices:        append([]string(nil), devices...),
	}
	return p.queue.Enqueue(task, p.cfg.EnqueueTimeout)
}

// Start launches the consumer goroutine. Idempotent.
func (p *Pipeline) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	p.done = groutine.GoDone(context.Background(), "notify-worker", p.run)
	p.logger.WithFields(logrus.Fields{
		"capacity": p.cfg.Capacity,
		"policy":   p.cfg.Policy,
	}).Info("Notification pipeline started")
}

// Stop halts intake, signals the consumer, and joins it within timeout.
// A join overrun is logged, not fatal.
func (p *Pipeline) Stop(timeout time.Duration) {
	p.accepting.Store(false)
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stop)

	select {
	case <-p.done:
		p.logger.Debug("Notification worker stopped")
	case <-time.After(timeout):
		p.logger.WithField("timeout", timeout).Error("Notification worker did not stop in time")
	}
}

// Metrics returns a snapshot of the pipeline counters.
func (p *Pipeline) Metrics() Snapshot {
	return p.metrics.Snapshot()
}

// QueueLen returns the number of pending tasks.
func (p *Pipeline) QueueLen() int {
	return p.queue.Len()
}

func (p *Pipeline) run(ctx context.Context) {
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		task, ok := p.queue.Dequeue(p.cfg.PollInterval, p.stop)
		if !ok {
			continue
		}
		p.publish(task)
	}
}

func (p *Pipeline) publish(task Task) {
	start := time.Now()
	err := p.notify(task.Characteristic, task.Devices)
	elapsed := time.Since(start)

	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"characteristic": task.Characteristic,
			"priority":       task.Priority.String(),
		}).Warn("Notification delivery failed")
	}
	p.metrics.addPublished(task.Priority)

	if p.cfg.SlowPublishThreshold > 0 && elapsed > p.cfg.SlowPublishThreshold {
		p.metrics.addSlowPublish()
		p.logger.WithFields(logrus.Fields{
			"characteristic": task.Characteristic,
			"elapsed":        elapsed,
			"threshold":      p.cfg.SlowPublishThreshold,
		}).Warn("Slow notification publish")
	}
}
