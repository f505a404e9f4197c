package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"deskbridge/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMonitorIterations = 10
	DefaultMonitorInterval   = time.Second
)

var (
	// ErrMonitorNotFound is returned by Stop for unknown or already finished monitors
	ErrMonitorNotFound = errors.New("monitor not found")
	// ErrMonitorShutdown is returned by Start once Shutdown has been called
	ErrMonitorShutdown = errors.New("process monitor is shut down")
)

// Publisher delivers named events to views
type Publisher interface {
	// Emit publishes to every connected view
	Emit(event string, payload interface{}) error
	// EmitTo publishes to the connections of a single view
	EmitTo(view, event string, payload interface{}) error
}

// MonitorOptions tunes a ProcessMonitor. Zero values fall back to the defaults.
type MonitorOptions struct {
	Iterations int
	Interval   time.Duration
	Now        func() time.Time
}

// ProcessMonitor runs the synthetic process status emitter. Every Start spawns
// an independent run that publishes one status per interval and then exits.
type ProcessMonitor struct {
	publisher  Publisher
	iterations int
	interval   time.Duration
	now        func() time.Time
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	runs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

func NewProcessMonitor(publisher Publisher, opts MonitorOptions, logger *zap.Logger) *ProcessMonitor {
	if opts.Iterations <= 0 {
		opts.Iterations = DefaultMonitorIterations
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultMonitorInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessMonitor{
		publisher:  publisher,
		iterations: opts.Iterations,
		interval:   opts.Interval,
		now:        opts.Now,
		logger:     logger.Named("monitor"),
		ctx:        ctx,
		cancel:     cancel,
		runs:       make(map[string]context.CancelFunc),
	}
}

// SyntheticStatus builds the payload for iteration i
func SyntheticStatus(i int, now time.Time) models.ProcessStatus {
	return models.ProcessStatus{
		ID:          i,
		MemoryUsage: 100 + i*10,
		CPUUsage:    float64(i%10) / 10,
		Timestamp:   now.UnixMilli(),
	}
}

// Start launches a run whose scoped events go to view and returns its handle
func (m *ProcessMonitor) Start(view string) (models.MonitorHandle, error) {
	id := uuid.NewString()

	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return models.MonitorHandle{}, ErrMonitorShutdown
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.runs[id] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(ctx, id, view)

	m.logger.Info("process monitoring started",
		zap.String("monitor_id", id),
		zap.String("view", view),
		zap.Int("iterations", m.iterations),
		zap.Duration("interval", m.interval))

	return models.MonitorHandle{
		MonitorID:  id,
		Iterations: m.iterations,
		IntervalMS: m.interval.Milliseconds(),
	}, nil
}

func (m *ProcessMonitor) run(ctx context.Context, id, view string) {
	defer m.wg.Done()
	defer m.forget(id)

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for i := 0; i < m.iterations; i++ {
		if i > 0 {
			timer.Reset(m.interval)
			select {
			case <-ctx.Done():
				m.logger.Info("process monitoring stopped early",
					zap.String("monitor_id", id), zap.Int("published", i))
				return
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return
		}

		m.publish(id, view, SyntheticStatus(i, m.now()))
	}

	m.logger.Info("process monitoring finished", zap.String("monitor_id", id))
}

// publish sends status globally and to view. Failures are logged and the run
// carries on with the next iteration.
func (m *ProcessMonitor) publish(id, view string, status models.ProcessStatus) {
	if err := m.publisher.Emit(models.EventProcessStatus, status); err != nil {
		m.logger.Warn("global publish failed",
			zap.String("monitor_id", id), zap.Int("iteration", status.ID), zap.Error(err))
	}

	err := m.publisher.EmitTo(view, models.EventWindowProcessStatus, status)
	switch {
	case err == nil:
	case errors.Is(err, ErrViewNotConnected):
		m.logger.Debug("view gone, scoped publish skipped",
			zap.String("monitor_id", id), zap.String("view", view), zap.Int("iteration", status.ID))
	default:
		m.logger.Warn("scoped publish failed",
			zap.String("monitor_id", id), zap.String("view", view), zap.Int("iteration", status.ID), zap.Error(err))
	}
}

func (m *ProcessMonitor) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.runs[id]; ok {
		cancel()
		delete(m.runs, id)
	}
}

// Stop cancels a running monitor
func (m *ProcessMonitor) Stop(id string) error {
	m.mu.Lock()
	cancel, ok := m.runs[id]
	delete(m.runs, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrMonitorNotFound, id)
	}
	cancel()
	return nil
}

// Active lists the ids of runs that have not finished, sorted
func (m *ProcessMonitor) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Wait blocks until every run has exited
func (m *ProcessMonitor) Wait() {
	m.wg.Wait()
}

// Shutdown cancels all runs and waits for them or for ctx. Later calls to
// Start fail with ErrMonitorShutdown.
func (m *ProcessMonitor) Shutdown(ctx context.Context) error {
	// under mu so no Start can add to wg once Wait may have begun
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("process monitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
