// Package notify implements the outbound notification pipeline: a bounded
// priority queue fed by the control loop and drained by a single consumer
// goroutine, the only caller of the transport backend's notify.
package notify

import (
	"fmt"
	"time"
)

// Priority orders notification delivery. Lower ordinal is served first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow

	numPriorities = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Policy selects what happens when the queue is full and a new task arrives.
type Policy string

const (
	// PolicyDropNewest discards the incoming task.
	PolicyDropNewest Policy = "drop_newest"
	// PolicyDropOldest evicts the oldest queued task regardless of priority.
	PolicyDropOldest Policy = "drop_oldest"
	// PolicyCoalesce discards the incoming task on the assumption a fresher
	// update for the same characteristic arrives soon.
	PolicyCoalesce Policy = "coalesce"
	// PolicyPriority evicts the worst queued task if the incoming one
	// outranks it, otherwise drops the incoming task.
	PolicyPriority Policy = "priority"
)

// ParsePolicy maps a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyDropNewest, PolicyDropOldest, PolicyCoalesce, PolicyPriority:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown backpressure policy %q", s)
	}
}

// Task is one pending notification. Immutable once enqueued; Devices is a
// snapshot taken at enqueue time, not a live reference.
type Task struct {
	Priority       Priority
	EnqueuedAt     time.Time
	Characteristic string
	Devices        []string

	seq uint64 // FIFO tiebreak within a priority tier
}
