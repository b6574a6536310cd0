package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Task is a background job run on a fixed interval.
type Task struct {
	Name     string
	Interval time.Duration
	// Timeout bounds one run; zero means the interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Manager runs periodic background tasks until stopped.
type Manager struct {
	tasks   []Task
	tickers []*time.Ticker
	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewManager creates a Manager. Tasks with a non-positive interval are
// disabled.
func NewManager(tasks ...Task) *Manager {
	m := &Manager{}
	for _, t := range tasks {
		if t.Interval <= 0 {
			log.Infof("[JobQueue Manager] Task %s disabled", t.Name)
			continue
		}
		m.tasks = append(m.tasks, t)
	}
	return m
}

// Start starts one worker per task.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	var ctx context.Context
	ctx, m.cancel = context.WithCancel(context.Background())
	m.running = true
	log.Info("[JobQueue Manager] Starting background tasks")

	m.tickers = m.tickers[:0]
	for _, t := range m.tasks {
		ticker := time.NewTicker(t.Interval)
		m.tickers = append(m.tickers, ticker)
		m.wg.Add(1)
		go m.worker(ctx, t, ticker, m.stopCh)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops all workers and waits for running tasks to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping background tasks...")

	for _, ticker := range m.tickers {
		ticker.Stop()
	}

	// Signal workers to stop and abort runs in progress
	close(m.stopCh)
	m.cancel()
	m.running = false

	m.wg.Wait()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) worker(ctx context.Context, t Task, ticker *time.Ticker, stopCh chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started %s worker (interval: %s)", t.Name, t.Interval)

	for {
		select {
		case <-stopCh:
			log.Infof("[JobQueue Manager] %s worker stopping", t.Name)
			return
		case <-ticker.C:
			runOnce(ctx, t)
		}
	}
}

func runOnce(ctx context.Context, t Task) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = t.Interval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := t.Run(ctx); err != nil {
		log.Errorf("[JobQueue Manager] %s error: %v", t.Name, err)
	}
}
