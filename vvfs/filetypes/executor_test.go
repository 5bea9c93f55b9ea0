package filetypes

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialExecutor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("RunsInOrder", func(t *testing.T) {
		e := NewSerialExecutor("test")
		defer e.Close()

		var mu sync.Mutex
		var got []int
		for i := 0; i < 50; i++ {
			require.True(t, e.Submit(func() {
				mu.Lock()
				got = append(got, i)
				mu.Unlock()
			}))
		}
		require.NoError(t, e.WaitIdle(ctx))

		require.Len(t, got, 50)
		for i, v := range got {
			assert.Equal(t, i, v)
		}
	})

	t.Run("TaskMayResubmit", func(t *testing.T) {
		e := NewSerialExecutor("test")
		defer e.Close()

		var runs int
		var task func()
		task = func() {
			runs++
			if runs < 5 {
				e.Submit(task)
			}
		}
		e.Submit(task)
		require.NoError(t, e.WaitIdle(ctx))
		assert.Equal(t, 5, runs)
	})

	t.Run("PanicDoesNotStopWorker", func(t *testing.T) {
		e := NewSerialExecutor("test")
		defer e.Close()

		ran := false
		e.Submit(func() { panic("boom") })
		e.Submit(func() { ran = true })
		require.NoError(t, e.WaitIdle(ctx))
		assert.True(t, ran)
	})

	t.Run("IdleWaitReturnsImmediately", func(t *testing.T) {
		e := NewSerialExecutor("test")
		defer e.Close()
		assert.NoError(t, e.WaitIdle(ctx))
	})

	t.Run("WaitIdleHonoursContext", func(t *testing.T) {
		e := NewSerialExecutor("test")
		release := make(chan struct{})
		e.Submit(func() { <-release })

		short, cancelShort := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancelShort()
		assert.ErrorIs(t, e.WaitIdle(short), context.DeadlineExceeded)

		close(release)
		e.Close()
	})

	t.Run("CloseDropsQueued", func(t *testing.T) {
		e := NewSerialExecutor("test")
		started := make(chan struct{})
		release := make(chan struct{})
		dropped := false
		e.Submit(func() {
			close(started)
			<-release
		})
		e.Submit(func() { dropped = true })
		<-started

		done := make(chan struct{})
		go func() {
			e.Close()
			close(done)
		}()
		require.Eventually(t, func() bool { return e.Pending() == 0 }, time.Second, time.Millisecond)
		close(release)
		<-done

		assert.False(t, dropped)
		assert.False(t, e.Submit(func() {}))
	})
}
