package notify

import (
	"container/heap"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Queue is a bounded priority queue of notification tasks, ordered by
// (priority, enqueue order). FIFO within a priority tier. Size never
// exceeds the configured capacity.
type Queue struct {
	capacity int
	policy   Policy
	metrics  *Metrics
	logger   *logrus.Logger

	mu     sync.Mutex
	tasks  taskHeap
	nexSeq uint64

	signal chan struct{} // pulsed on successful insert
}

// NewQueue creates a bounded queue applying the given backpressure policy.
func NewQueue(capacity int, policy Policy, metrics *Metrics, logger *logrus.Logger) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Queue{
		capacity: capacity,
		policy:   policy,
		metrics:  metrics,
		logger:   logger,
		tasks:    make(taskHeap, 0, capacity),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue inserts a task, applying the backpressure policy when full.
// It never blocks the caller longer than timeout: if the queue lock cannot
// be acquired in time (a stalled consumer mid-dequeue), the task is counted
// as dropped instead of stalling the control loop. Returns true if the
// task was inserted.
func (q *Queue) Enqueue(task Task, timeout time.Duration) bool {
	if !q.lockWithin(timeout) {
		q.metrics.addDropped(task.Priority)
		q.logger.WithField("characteristic", task.Characteristic).Warn("Enqueue timed out")
		return false
	}
	defer q.mu.Unlock()

	task.seq = q.nexSeq
	q.nexSeq++
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}

	if len(q.tasks) < q.capacity {
		heap.Push(&q.tasks, task)
		q.pulse()
		return true
	}

	switch q.policy {
	case PolicyDropOldest:
		evicted := q.removeOldest()
		q.metrics.addDropped(evicted.Priority)
		heap.Push(&q.tasks, task)
		q.pulse()
		return true

	case PolicyCoalesce:
		q.metrics.addCoalesced(task.Priority)
		return false

	case PolicyPriority:
		worst, idx := q.worst()
		if task.Priority < worst.Priority {
			heap.Remove(&q.tasks, idx)
			q.metrics.addDropped(worst.Priority)
			heap.Push(&q.tasks, task)
			q.pulse()
			return true
		}
		q.metrics.addDropped(task.Priority)
		return false

	default: // PolicyDropNewest
		q.metrics.addDropped(task.Priority)
		return false
	}
}

// Dequeue removes the best task, waiting up to timeout for one to arrive.
// A receive on stop aborts the wait immediately.
func (q *Queue) Dequeue(timeout time.Duration, stop <-chan struct{}) (Task, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := heap.Pop(&q.tasks).(Task)
			q.mu.Unlock()
			return task, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-deadline.C:
			return Task{}, false
		case <-stop:
			return Task{}, false
		}
	}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *Queue) lockWithin(timeout time.Duration) bool {
	if q.mu.TryLock() {
		return true
	}
	if timeout <= 0 {
		q.mu.Lock()
		return true
	}
	deadline := time.Now().Add(timeout)
	for {
		time.Sleep(50 * time.Microsecond)
		if q.mu.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
	}
}

func (q *Queue) pulse() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// removeOldest evicts the earliest-enqueued task regardless of priority.
func (q *Queue) removeOldest() Task {
	oldest := 0
	for i := 1; i < len(q.tasks); i++ {
		if q.tasks[i].seq < q.tasks[oldest].seq {
			oldest = i
		}
	}
	return heap.Remove(&q.tasks, oldest).(Task)
}

// worst returns the queued task served last: highest priority ordinal,
// newest within that tier.
func (q *Queue) worst() (Task, int) {
	idx := 0
	for i := 1; i < len(q.tasks); i++ {
		w := q.tasks[idx]
		c := q.tasks[i]
		if c.Priority > w.Priority || (c.Priority == w.Priority && c.seq > w.seq) {
			idx = i
		}
	}
	return q.tasks[idx], idx
}

// taskHeap orders by (priority, seq): lower priority ordinal first, FIFO
// within a tier.
type taskHeap []Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) {
	*h = append(*h, x.(Task))
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	*h = old[:n-1]
	return task
}
