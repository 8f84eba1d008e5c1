package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-serbridge/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMockLogger() *logger.MockLogger {
	mockLogger := logger.NewMockLogger()
	mockLogger.On("Debug", mock.Anything, mock.Anything).Return()
	mockLogger.On("Error", mock.Anything, mock.Anything).Return()

	return mockLogger
}

func TestManager_Start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mockLogger := newMockLogger()
	mgr := NewManager(ctx, mockLogger)

	var iterations atomic.Int32
	require.NoError(t, mgr.Start("loop", func() bool {
		iterations.Add(1)
		time.Sleep(time.Millisecond)

		return true
	}))

	require.Eventually(t, func() bool { return iterations.Load() > 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, mgr.TaskCount())

	mgr.Stop()
	mgr.Wait()

	assert.Equal(t, 0, mgr.TaskCount())
	mockLogger.AssertNumberOfCalls(t, "Debug", 2)
	mockLogger.AssertNumberOfCalls(t, "Error", 0)
}

func TestManager_StartStopsOnFalse(t *testing.T) {
	mgr := NewManager(context.Background(), newMockLogger())

	var iterations atomic.Int32
	require.NoError(t, mgr.Start("limited", func() bool {
		return iterations.Add(1) < 3
	}))

	mgr.Wait()
	assert.Equal(t, int32(3), iterations.Load())
}

func TestManager_Go(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := NewManager(ctx, newMockLogger())

	started := make(chan struct{})
	require.NoError(t, mgr.Go("oneshot", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))

	<-started
	assert.Equal(t, 1, mgr.TaskCount())

	cancel() // parent cancellation reaches the task
	mgr.Wait()
	assert.Equal(t, 0, mgr.TaskCount())
}

func TestManager_RecoverPanic(t *testing.T) {
	mockLogger := newMockLogger()
	mgr := NewManager(context.Background(), mockLogger)

	require.NoError(t, mgr.Go("panicking", func(context.Context) {
		panic("boom")
	}))
	require.NoError(t, mgr.Start("panicking-loop", func() bool {
		panic("boom again")
	}))

	mgr.Wait()

	mockLogger.AssertNumberOfCalls(t, "Error", 2)
	mockLogger.AssertCalled(t, "Error", "panic in task", mock.Anything)
}

func TestManager_StartAfterStop(t *testing.T) {
	mgr := NewManager(context.Background(), newMockLogger())
	mgr.Stop()

	err := mgr.Go("late", func(context.Context) {})
	require.ErrorIs(t, err, ErrStopped)

	err = mgr.Start("late-loop", func() bool { return false })
	require.ErrorIs(t, err, ErrStopped)

	mgr.Wait()
	assert.Equal(t, 0, mgr.TaskCount())
}
