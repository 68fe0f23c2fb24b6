package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDropsOldestWhenFull(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		r.Send(i)
	}

	assert.Equal(t, 3, r.Len())
	var got []int
	for {
		v, ok := r.TryReceive()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 4, 5}, got)

	m := r.GetMetrics()
	assert.Equal(t, int64(5), m.Written)
	assert.Equal(t, int64(2), m.Overwritten)
	assert.Equal(t, int64(3), m.Processed)
}

func TestBacklogRetainsConsumedValues(t *testing.T) {
	r := New[string](4)
	r.Send("a")
	r.Send("b")

	// Drain the live channel, then check the backlog still has the tail.
	v, ok := r.Receive()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	assert.Equal(t, []string{"a", "b"}, r.Backlog())

	r.Send("c")
	r.Send("d")
	r.Send("e") // evicts "a" from the backlog window
	assert.Equal(t, []string{"b", "c", "d", "e"}, r.Backlog())
}

func TestCloseStopsIntake(t *testing.T) {
	r := New[int](2)
	r.Send(1)
	r.Close()
	r.Send(2) // dropped, no panic

	v, ok := r.Receive()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = r.Receive()
	assert.False(t, ok)
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
