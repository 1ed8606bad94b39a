package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// ReconcileFunc runs one reconcile pass.
type ReconcileFunc func(ctx context.Context) error

// Manager owns the job queue and its periodic background tasks
type Manager struct {
	queue             *Queue
	reconcile         ReconcileFunc
	reconcileInterval time.Duration
	reconcileTicker   *time.Ticker
	stopCh            chan struct{}
	wg                sync.WaitGroup
	mu                sync.Mutex
	running           bool
}

// NewManager creates a manager around queue.
func NewManager(queue *Queue) *Manager {
	return &Manager{
		queue:  queue,
		stopCh: make(chan struct{}),
	}
}

// SetReconciler installs a periodic reconcile pass. interval <= 0 disables it.
// Call it before Start.
func (m *Manager) SetReconciler(interval time.Duration, fn ReconcileFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconcileInterval = interval
	m.reconcile = fn
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.reconcile != nil && m.reconcileInterval > 0 {
		m.reconcileTicker = time.NewTicker(m.reconcileInterval)
		m.wg.Add(1)
		go m.reconcileWorker(m.reconcileTicker, m.stopCh)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
		m.reconcileTicker = nil
	}

	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// reconcileWorker runs the reconcile pass on every tick
func (m *Manager) reconcileWorker(ticker *time.Ticker, stopCh <-chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started reconcile worker (interval: %s)", m.reconcileInterval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Reconcile worker stopping")
			return
		case <-ticker.C:
			if err := m.RunReconcileOnce(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Reconcile error: %v", err)
			}
		}
	}
}

// RunReconcileOnce runs a single reconcile pass (also used for manual triggers).
func (m *Manager) RunReconcileOnce(ctx context.Context) error {
	if m.reconcile == nil {
		return nil
	}
	return m.reconcile(ctx)
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
