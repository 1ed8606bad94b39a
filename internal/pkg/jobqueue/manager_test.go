package jobqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	queue, _ := newTestQueue(t, Options{})
	manager := NewManager(queue)

	assert.Same(t, queue, manager.GetQueue())
	assert.NotNil(t, manager.stopCh)
	assert.False(t, manager.IsRunning())
}

func TestManager_StopWithoutStart(t *testing.T) {
	queue, _ := newTestQueue(t, Options{})
	manager := NewManager(queue)

	manager.Stop()
	assert.False(t, manager.IsRunning())
}

func TestManager_StartStartsQueue(t *testing.T) {
	queue, _ := newTestQueue(t, Options{Workers: 1})
	manager := NewManager(queue)

	manager.Start()
	assert.True(t, manager.IsRunning())
	assert.True(t, queue.IsRunning())

	manager.Stop()
	assert.False(t, manager.IsRunning())
	assert.False(t, queue.IsRunning())

	// Restartable
	manager.Start()
	assert.True(t, manager.IsRunning())
	manager.Stop()
}

func TestManager_RunsReconciler(t *testing.T) {
	queue, _ := newTestQueue(t, Options{Workers: 1})
	manager := NewManager(queue)

	var runs atomic.Int32
	manager.SetReconciler(10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	manager.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)
	manager.Stop()

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no reconcile after Stop")
}

func TestManager_ReconcilerDisabled(t *testing.T) {
	queue, _ := newTestQueue(t, Options{Workers: 1})
	manager := NewManager(queue)

	var runs atomic.Int32
	manager.SetReconciler(0, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	manager.Start()
	time.Sleep(30 * time.Millisecond)
	manager.Stop()
	assert.Zero(t, runs.Load())

	require.NoError(t, manager.RunReconcileOnce(context.Background()))
	assert.Equal(t, int32(1), runs.Load())
}
