package topology

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerArmAndFire(t *testing.T) {
	mt := &manualTimer{}
	s := NewSchedulerWithTimer(mt.timer)

	var runs atomic.Int32
	tick := s.Arm(250*time.Millisecond, func() { runs.Add(1) })
	require.NotNil(t, tick)
	assert.Equal(t, 250*time.Millisecond, mt.last().delay)
	assert.True(t, s.Pending())

	assert.Nil(t, s.Arm(time.Second, func() {}), "only one tick may be pending")

	mt.fireLast()
	assert.Equal(t, int32(1), runs.Load())
	assert.True(t, tick.Fired())
	assert.False(t, s.Pending())

	// a stale timer firing twice runs the tick once
	mt.fireLast()
	assert.Equal(t, int32(1), runs.Load())
}

func TestSchedulerTickCanRearm(t *testing.T) {
	mt := &manualTimer{}
	s := NewSchedulerWithTimer(mt.timer)

	var fn func()
	fn = func() { s.Arm(time.Second, fn) }
	s.Arm(time.Second, fn)

	mt.fireLast()
	mt.fireLast()
	assert.Equal(t, 3, mt.count())
	assert.True(t, s.Pending())
}

func TestSchedulerCancel(t *testing.T) {
	mt := &manualTimer{}
	s := NewSchedulerWithTimer(mt.timer)

	var runs atomic.Int32
	tick := s.Arm(time.Second, func() { runs.Add(1) })
	require.NotNil(t, tick)

	assert.True(t, tick.Cancel())
	assert.False(t, tick.Cancel())
	assert.True(t, mt.last().stopped)
	assert.False(t, s.Pending())

	mt.fireLast()
	assert.Equal(t, int32(0), runs.Load())
	assert.False(t, tick.Fired())

	assert.NotNil(t, s.Arm(time.Second, func() {}))
}

func TestSchedulerStop(t *testing.T) {
	mt := &manualTimer{}
	s := NewSchedulerWithTimer(mt.timer)

	var runs atomic.Int32
	s.Arm(time.Second, func() { runs.Add(1) })

	s.Stop()
	assert.True(t, s.Stopped())
	assert.False(t, s.Pending())
	assert.Nil(t, s.Arm(time.Second, func() {}))

	mt.fireLast()
	assert.Equal(t, int32(0), runs.Load())
}

func TestSchedulerStopWaitsForRunningTick(t *testing.T) {
	s := NewScheduler()

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	s.Arm(time.Millisecond, func() {
		close(started)
		<-release
		finished.Store(true)
	})
	<-started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was executing")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	assert.True(t, finished.Load())
}
