package transport

import (
	"errors"
	"sync/atomic"
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

func startedLoop(t *testing.T) *Loop {
	t.Helper()
	l := NewLoop(quietLogger())
	require.NoError(t, l.Start(time.Second))
	t.Cleanup(func() { l.Stop(time.Second) })
	return l
}

func TestLoopRunsScheduledWork(t *testing.T) {
	l := startedLoop(t)

	var ran atomic.Bool
	h, err := l.Schedule("probe", func() error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, h.Wait(time.Second))
	assert.True(t, ran.Load())
}

func TestLoopPropagatesWorkErrors(t *testing.T) {
	l := startedLoop(t)

	boom := errors.New("boom")
	err := l.Run("failing", time.Second, func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestLoopSerializesWork(t *testing.T) {
	l := startedLoop(t)

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		last := i == 4
		_, err := l.Schedule("ordered", func() error {
			order = append(order, i)
			if last {
				close(done)
			}
			return nil
		})
		require.NoError(t, err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled work did not finish")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestLoopWaitTimesOut(t *testing.T) {
	l := startedLoop(t)

	release := make(chan struct{})
	defer close(release)
	h, err := l.Schedule("slow", func() error {
		<-release
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, h.Wait(10*time.Millisecond), ErrTimeout)
}

func TestLoopRecoversFromPanics(t *testing.T) {
	l := startedLoop(t)

	err := l.Run("panicky", time.Second, func() error { panic("oops") })
	assert.Error(t, err)

	// The loop keeps serving after a panic.
	assert.NoError(t, l.Run("after", time.Second, func() error { return nil }))
}

func TestLoopStopCancelsPendingWork(t *testing.T) {
	l := NewLoop(quietLogger())
	require.NoError(t, l.Start(time.Second))

	release := make(chan struct{})
	blocker, err := l.Schedule("blocker", func() error {
		<-release
		return nil
	})
	require.NoError(t, err)

	pending, err := l.Schedule("pending", func() error { return nil })
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	l.Stop(time.Second)

	require.NoError(t, blocker.Wait(time.Second))
	assert.ErrorIs(t, pending.Wait(time.Second), ErrCanceled)

	_, err = l.Schedule("late", func() error { return nil })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestLoopScheduleBeforeStart(t *testing.T) {
	l := NewLoop(quietLogger())
	_, err := l.Schedule("early", func() error { return nil })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestLoopStopIsIdempotent(t *testing.T) {
	l := NewLoop(quietLogger())
	require.NoError(t, l.Start(time.Second))
	l.Stop(time.Second)
	l.Stop(time.Second)
}
