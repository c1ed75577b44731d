package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunStatus represents the status of a reconciliation run
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
)

// RunTrigger says what started a run
type RunTrigger string

const (
	RunTriggerInterval RunTrigger = "interval"
	RunTriggerManual   RunTrigger = "manual"
)

// Run records one reconciliation pass
type Run struct {
	ID              uuid.UUID  `json:"id"`
	Trigger         RunTrigger `json:"trigger"`
	Status          RunStatus  `json:"status"`
	Attempts        int        `json:"attempts"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ProductsChecked int        `json:"products_checked"`
	Discrepancies   int        `json:"discrepancies"`
	Error           string     `json:"error,omitempty"`
}

// Reconciler runs one reconciliation over every tenant when tenantID is nil
type Reconciler interface {
	Run(ctx context.Context, tenantID *uuid.UUID) (*inventory.ReconciliationReport, error)
}

// Config holds scheduler configuration
type Config struct {
	Enabled       bool
	Interval      time.Duration
	RunTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Interval:      time.Hour,
		RunTimeout:    5 * time.Minute,
		RetryAttempts: 2,
		RetryDelay:    30 * time.Second,
	}
}

func (c Config) validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("%w: run timeout must be positive", ErrInvalidConfig)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: retry attempts cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// ReconciliationScheduler runs reconciliation on an interval and on demand.
// Runs never overlap: a manual trigger during a run is queued behind it.
type ReconciliationScheduler struct {
	config     Config
	reconciler Reconciler
	logger     *zap.Logger

	trigger   chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastRun   *Run
}

// NewReconciliationScheduler creates a new scheduler
func NewReconciliationScheduler(config Config, reconciler Reconciler, logger *zap.Logger) (*ReconciliationScheduler, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationScheduler{
		config:     config,
		reconciler: reconciler,
		logger:     logger.Named("reconciliation_scheduler"),
		trigger:    make(chan struct{}, 1),
	}, nil
}

// Start starts the run loop. Calling Start on a running or disabled
// scheduler does nothing.
func (s *ReconciliationScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Reconciliation scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Reconciliation scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("run_timeout", s.config.RunTimeout),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to return
func (s *ReconciliationScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Reconciliation scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Reconciliation scheduler stop timed out")
		return ctx.Err()
	}
}

// TriggerNow queues a run outside the interval
func (s *ReconciliationScheduler) TriggerNow() error {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()
	if !running {
		return ErrSchedulerNotRunning
	}

	select {
	case s.trigger <- struct{}{}:
		return nil
	default:
		return ErrRunAlreadyQueued
	}
}

// LastRun returns a copy of the most recent run, or nil before the first
func (s *ReconciliationScheduler) LastRun() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	run := *s.lastRun
	return &run
}

func (s *ReconciliationScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, RunTriggerInterval)
		case <-s.trigger:
			s.execute(ctx, RunTriggerManual)
		}
	}
}

// execute performs one run, retrying failed attempts after RetryDelay
func (s *ReconciliationScheduler) execute(ctx context.Context, trigger RunTrigger) {
	run := &Run{
		ID:        uuid.New(),
		Trigger:   trigger,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
	s.setLastRun(run)

	log := s.logger.With(zap.String("run_id", run.ID.String()), zap.String("trigger", string(trigger)))
	log.Info("Reconciliation run started")

	var err error
	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				s.finish(run, nil, ctx.Err())
				return
			case <-time.After(s.config.RetryDelay):
			}
		}

		s.mu.Lock()
		run.Attempts = attempt + 1
		s.mu.Unlock()

		var report *inventory.ReconciliationReport
		report, err = s.runOnce(ctx)
		if err == nil {
			s.finish(run, report, nil)
			log.Info("Reconciliation run completed",
				zap.Int("products_checked", report.ProductsChecked),
				zap.Int("discrepancies", len(report.Discrepancies)),
			)
			return
		}
		log.Warn("Reconciliation attempt failed", zap.Int("attempt", run.Attempts), zap.Error(err))
	}

	s.finish(run, nil, err)
	log.Error("Reconciliation run failed", zap.Int("attempts", run.Attempts), zap.Error(err))
}

func (s *ReconciliationScheduler) runOnce(ctx context.Context) (*inventory.ReconciliationReport, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()
	return s.reconciler.Run(runCtx, nil)
}

func (s *ReconciliationScheduler) finish(run *Run, report *inventory.ReconciliationReport, err error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	run.CompletedAt = &now
	if err != nil {
		run.Status = RunStatusFailed
		run.Error = err.Error()
	} else {
		run.Status = RunStatusSuccess
		run.ProductsChecked = report.ProductsChecked
		run.Discrepancies = len(report.Discrepancies)
	}
	s.lastRun = run
}

func (s *ReconciliationScheduler) setLastRun(run *Run) {
	s.mu.Lock()
	s.lastRun = run
	s.mu.Unlock()
}
