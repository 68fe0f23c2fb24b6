package notify

import "sync/atomic"

// Metrics tracks pipeline activity with lock-free counters. All counters
// are monotonically increasing.
type Metrics struct {
	published [numPriorities]int64
	dropped   [numPriorities]int64
	coalesced [numPriorities]int64

	slowPublishes int64
	criticalDrops int64
}

// Snapshot is a point-in-time copy of the counters, broken down by priority.
type Snapshot struct {
	Published map[Priority]int64
	Dropped   map[Priority]int64
	Coalesced map[Priority]int64

	SlowPublishes int64
	// CriticalDrops counts dropped critical-priority tasks separately:
	// they indicate sustained overload rather than routine shedding.
	CriticalDrops int64
}

// TotalDropped sums drops across priorities.
func (s Snapshot) TotalDropped() int64 {
	var n int64
	for _, v := range s.Dropped {
		n += v
	}
	return n
}

// TotalPublished sums publishes across priorities.
func (s Snapshot) TotalPublished() int64 {
	var n int64
	for _, v := range s.Published {
		n += v
	}
	return n
}

func (m *Metrics) addPublished(p Priority) {
	atomic.AddInt64(&m.published[p], 1)
}

func (m *Metrics) addDropped(p Priority) {
	atomic.AddInt64(&m.dropped[p], 1)
	if p == PriorityCritical {
		atomic.AddInt64(&m.criticalDrops, 1)
	}
}

func (m *Metrics) addCoalesced(p Priority) {
	atomic.AddInt64(&m.coalesced[p], 1)
}

func (m *Metrics) addSlowPublish() {
	atomic.AddInt64(&m.slowPublishes, 1)
}

// Snapshot returns an atomic copy of all counters.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Published:     make(map[Priority]int64, numPriorities),
		Dropped:       make(map[Priority]int64, numPriorities),
		Coalesced:     make(map[Priority]int64, numPriorities),
		SlowPublishes: atomic.LoadInt64(&m.slowPublishes),
		CriticalDrops: atomic.LoadInt64(&m.criticalDrops),
	}
	for p := Priority(0); p < numPriorities; p++ {
		s.Published[p] = atomic.LoadInt64(&m.published[p])
		s.Dropped[p] = atomic.LoadInt64(&m.dropped[p])
		s.Coalesced[p] = atomic.LoadInt64(&m.coalesced[p])
	}
	return s
}
