package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolDefaults(t *testing.T) {
	p := New("test", 0, -1)
	defer p.Shutdown()

	stats := p.Stats()
	assert.Equal(t, "test", stats.Name)
	assert.Equal(t, 1, stats.Workers)
	assert.True(t, p.IsRunning())
}

func TestSubmitRunsTasks(t *testing.T) {
	p := New("test", 4, 100)

	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()
	p.Shutdown()

	assert.Equal(t, int64(50), ran.Load())
	assert.Equal(t, int64(50), p.Stats().Completed)
}

func TestSubmitQueueFull(t *testing.T) {
	p := New("test", 1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, p.Submit(func() {}))
	require.Eventually(t, func() bool { return p.Stats().Pending == 1 },
		time.Second, 5*time.Millisecond, "second task never reached the waiting queue")

	err := p.Submit(func() {})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, int64(1), p.Stats().Rejected)

	close(release)
	p.Shutdown()
}

func TestUnboundedQueue(t *testing.T) {
	p := New("test", 1, 0)
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			<-release
		}))
	}
	close(release)
	wg.Wait()
	p.Shutdown()
	assert.Zero(t, p.Stats().Rejected)
}

func TestShutdownDrainsQueue(t *testing.T) {
	p := New("test", 1, 10)
	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(func() {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		}))
	}
	p.Shutdown()
	assert.Equal(t, int64(5), ran.Load())
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	p := New("test", 1, 10)

	done := make(chan struct{})
	require.NoError(t, p.Submit(func() { panic("boom") }))
	require.NoError(t, p.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	p.Shutdown()
	assert.Equal(t, int64(1), p.Stats().Panicked)
}

func TestSubmitAfterShutdown(t *testing.T) {
	p := New("test", 2, 2)
	p.Shutdown()
	p.Shutdown()

	assert.False(t, p.IsRunning())
	assert.ErrorIs(t, p.Submit(func() {}), ErrClosed)
}

func TestShutdownWithTimeout(t *testing.T) {
	p := New("test", 1, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func() {
		close(started)
		<-release
	}))
	<-started

	err := p.ShutdownWithTimeout(20 * time.Millisecond)
	assert.Error(t, err)

	close(release)
	assert.NoError(t, p.ShutdownWithTimeout(time.Second), "second call is a no-op")
}
