package notify

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func task(p Priority, char string) Task {
	return Task{Priority: p, Characteristic: char}
}

// drainQueue pops everything without waiting.
func drainQueue(q *Queue) []Task {
	var out []Task
	stop := make(chan struct{})
	close(stop)
	for {
		t, ok := q.Dequeue(time.Millisecond, stop)
		if !ok {
			return out
		}
		out = append(out, t)
	}
}

func TestPriorityOrderingWithFIFOWithinTier(t *testing.T) {
	m := &Metrics{}
	q := NewQueue(16, PolicyPriority, m, quietLogger())

	require.True(t, q.Enqueue(task(PriorityLow, "low-1"), 0))
	require.True(t, q.Enqueue(task(PriorityCritical, "crit-1"), 0))
	require.True(t, q.Enqueue(task(PriorityMedium, "med-1"), 0))
	require.True(t, q.Enqueue(task(PriorityCritical, "crit-2"), 0))
	require.True(t, q.Enqueue(task(PriorityHigh, "high-1"), 0))
	require.True(t, q.Enqueue(task(PriorityLow, "low-2"), 0))

	var order []string
	for _, tk := range drainQueue(q) {
		order = append(order, tk.Characteristic)
	}
	assert.Equal(t, []string{"crit-1", "crit-2", "high-1", "med-1", "low-1", "low-2"}, order)
}

// TestPriorityPolicyConservation pins the backpressure conservation
// property: a critical task always displaces a low task, a low task never
// displaces anything.
func TestPriorityPolicyConservation(t *testing.T) {
	t.Run("critical evicts exactly one low", func(t *testing.T) {
		m := &Metrics{}
		q := NewQueue(4, PolicyPriority, m, quietLogger())
		for i := 0; i < 4; i++ {
			require.True(t, q.Enqueue(task(PriorityLow, "low"), 0))
		}

		assert.True(t, q.Enqueue(task(PriorityCritical, "crit"), 0))
		assert.Equal(t, 4, q.Len(), "queue size must not exceed capacity")

		s := m.Snapshot()
		assert.Equal(t, int64(1), s.Dropped[PriorityLow])
		assert.Equal(t, int64(0), s.CriticalDrops)

		tasks := drainQueue(q)
		assert.Equal(t, "crit", tasks[0].Characteristic)
	})

	t.Run("low is dropped when full of critical", func(t *testing.T) {
		m := &Metrics{}
		q := NewQueue(4, PolicyPriority, m, quietLogger())
		for i := 0; i < 4; i++ {
			require.True(t, q.Enqueue(task(PriorityCritical, "crit"), 0))
		}

		assert.False(t, q.Enqueue(task(PriorityLow, "low"), 0))
		assert.Equal(t, 4, q.Len())
		assert.Equal(t, int64(1), m.Snapshot().Dropped[PriorityLow])
	})

	t.Run("equal priority drops incoming", func(t *testing.T) {
		m := &Metrics{}
		q := NewQueue(2, PolicyPriority, m, quietLogger())
		require.True(t, q.Enqueue(task(PriorityMedium, "a"), 0))
		require.True(t, q.Enqueue(task(PriorityMedium, "b"), 0))

		assert.False(t, q.Enqueue(task(PriorityMedium, "c"), 0))
		var names []string
		for _, tk := range drainQueue(q) {
			names = append(names, tk.Characteristic)
		}
		assert.Equal(t, []string{"a", "b"}, names)
	})

	t.Run("critical drop is counted separately", func(t *testing.T) {
		m := &Metrics{}
		q := NewQueue(1, PolicyPriority, m, quietLogger())
		require.True(t, q.Enqueue(task(PriorityCritical, "a"), 0))
		assert.False(t, q.Enqueue(task(PriorityCritical, "b"), 0))
		s := m.Snapshot()
		assert.Equal(t, int64(1), s.CriticalDrops)
		assert.Equal(t, int64(1), s.Dropped[PriorityCritical])
	})
}

// TestOverloadSheddingDropOldest pins the overload scenario: capacity 4,
// 10 sequential low tasks, final length 4 with 6 drops.
func TestOverloadSheddingDropOldest(t *testing.T) {
	m := &Metrics{}
	q := NewQueue(4, PolicyDropOldest, m, quietLogger())

	for i := 0; i < 10; i++ {
		q.Enqueue(Task{Priority: PriorityLow, Characteristic: string(rune('a' + i))}, 0)
	}

	assert.Equal(t, 4, q.Len())
	assert.Equal(t, int64(6), m.Snapshot().TotalDropped())

	// The survivors are the newest four, in FIFO order.
	var names []string
	for _, tk := range drainQueue(q) {
		names = append(names, tk.Characteristic)
	}
	assert.Equal(t, []string{"g", "h", "i", "j"}, names)
}

func TestDropOldestEvictsAcrossPriorities(t *testing.T) {
	m := &Metrics{}
	q := NewQueue(2, PolicyDropOldest, m, quietLogger())
	require.True(t, q.Enqueue(task(PriorityCritical, "crit-old"), 0))
	require.True(t, q.Enqueue(task(PriorityLow, "low"), 0))

	// drop_oldest is priority-blind: the critical task is the oldest.
	require.True(t, q.Enqueue(task(PriorityLow, "low-2"), 0))
	s := m.Snapshot()
	assert.Equal(t, int64(1), s.Dropped[PriorityCritical])
	assert.Equal(t, int64(1), s.CriticalDrops)
}

func TestDropNewestPolicy(t *testing.T) {
	m := &Metrics{}
	q := NewQueue(2, PolicyDropNewest, m, quietLogger())
	require.True(t, q.Enqueue(task(PriorityLow, "a"), 0))
	require.True(t, q.Enqueue(task(PriorityLow, "b"), 0))

	assert.False(t, q.Enqueue(task(PriorityCritical, "c"), 0), "drop_newest drops even critical")
	assert.Equal(t, 2, q.Len())
	s := m.Snapshot()
	assert.Equal(t, int64(1), s.Dropped[PriorityCritical])
}

func TestCoalescePolicy(t *testing.T) {
	m := &Metrics{}
	q := NewQueue(2, PolicyCoalesce, m, quietLogger())
	require.True(t, q.Enqueue(task(PriorityMedium, "a"), 0))
	require.True(t, q.Enqueue(task(PriorityMedium, "b"), 0))

	assert.False(t, q.Enqueue(task(PriorityMedium, "c"), 0))
	s := m.Snapshot()
	assert.Equal(t, int64(1), s.Coalesced[PriorityMedium])
	assert.Equal(t, int64(0), s.TotalDropped(), "coalesced tasks are not counted as drops")
}

func TestDequeueTimesOutOnEmptyQueue(t *testing.T) {
	q := NewQueue(4, PolicyPriority, &Metrics{}, quietLogger())
	stop := make(chan struct{})

	start := time.Now()
	_, ok := q.Dequeue(20*time.Millisecond, stop)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDequeueObservesStop(t *testing.T) {
	q := NewQueue(4, PolicyPriority, &Metrics{}, quietLogger())
	stop := make(chan struct{})
	close(stop)

	start := time.Now()
	_, ok := q.Dequeue(10*time.Second, stop)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second, "stop must abort the wait promptly")
}
