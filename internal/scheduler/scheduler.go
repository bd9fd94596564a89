// Package scheduler dispatches an execution plan's tasks concurrently with
// per-capability concurrency and rate bounds, reports progress as tasks reach
// terminal states, and closes the barrier only when every task is terminal.
// A task failure never cancels its siblings.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/medwatch-ai/medwatch/internal/budget"
	"github.com/medwatch-ai/medwatch/internal/metrics"
	"github.com/medwatch-ai/medwatch/internal/models"
)

// TaskRunner executes one task end to end (fetch plus analysis) and returns
// its result. Implementations must be safe for concurrent use.
type TaskRunner interface {
	Run(ctx context.Context, task *models.Task) (*models.AgentResult, error)
}

// ProgressSink receives monotone progress updates during plan execution.
// percent is 0–100; message names the task that just finished. Sinks are
// called from worker goroutines but never concurrently.
type ProgressSink func(percent int, message string)

// Config bounds plan execution.
type Config struct {
	// MaxConcurrent caps in-flight tasks per capability.
	MaxConcurrent int64
	// RequestsPerSecond throttles dispatches per capability.
	RequestsPerSecond float64
	// CostPerTask is the ledger reservation made for each dispatched task.
	CostPerTask float64
	// TaskTimeout bounds one task's execution. Zero means no per-task bound.
	TaskTimeout time.Duration
}

// DefaultConfig matches the source's published politeness limits.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     3,
		RequestsPerSecond: 4,
		CostPerTask:       0.01,
		TaskTimeout:       60 * time.Second,
	}
}

// Scheduler runs execution plans.
type Scheduler struct {
	runner TaskRunner
	ledger budget.Ledger
	cfg    Config
	logger *zap.Logger
}

// New builds a scheduler. ledger may be nil to disable usage gating.
func New(runner TaskRunner, ledger budget.Ledger, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	return &Scheduler{runner: runner, ledger: ledger, cfg: cfg, logger: logger}
}

type capGate struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// Execute runs every task in the plan and returns when all of them are
// terminal. Tasks denied by the usage ledger are marked failed without
// dispatch; their siblings still run. Execute never returns an error for
// individual task failures, only for a nil plan.
func (s *Scheduler) Execute(ctx context.Context, plan *models.ExecutionPlan, callerID string, sink ProgressSink) error {
	if plan == nil {
		return errors.New("nil execution plan")
	}
	total := len(plan.Tasks)
	if total == 0 {
		if sink != nil {
			sink(100, "nothing to do")
		}
		return nil
	}

	gates := make(map[models.Capability]*capGate)
	for _, task := range plan.Tasks {
		if _, ok := gates[task.Capability]; !ok {
			gates[task.Capability] = &capGate{
				sem:     semaphore.NewWeighted(s.cfg.MaxConcurrent),
				limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), 1),
			}
		}
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex // guards terminal count and sink calls
		terminal int
	)
	finish := func(task *models.Task, status models.TaskStatus) {
		mu.Lock()
		defer mu.Unlock()
		task.Status = status
		terminal++
		metrics.TasksCompleted.WithLabelValues(string(task.Capability), string(status)).Inc()
		if sink != nil {
			sink(terminal*100/total, fmt.Sprintf("%s %s for %q", task.Capability, status, task.TargetEntity.Name))
		}
	}

	for _, task := range plan.Tasks {
		if !s.reserve(ctx, callerID, task) {
			finish(task, models.TaskFailed)
			continue
		}

		wg.Add(1)
		metrics.TasksDispatched.WithLabelValues(string(task.Capability)).Inc()
		gate := gates[task.Capability]
		go func(task *models.Task) {
			defer wg.Done()
			if err := s.runTask(ctx, gate, task); err != nil {
				task.Error = err.Error()
				s.logger.Warn("Task failed",
					zap.String("task_id", task.ID),
					zap.String("capability", string(task.Capability)),
					zap.String("entity", task.TargetEntity.Name),
					zap.Error(err))
				finish(task, models.TaskFailed)
				return
			}
			finish(task, models.TaskCompleted)
		}(task)
	}

	wg.Wait()
	return nil
}

// reserve gates one dispatch against the usage ledger. Ledger transport
// errors fail open: the task runs and the discrepancy is logged.
func (s *Scheduler) reserve(ctx context.Context, callerID string, task *models.Task) bool {
	if s.ledger == nil || callerID == "" {
		return true
	}
	_, err := s.ledger.TryReserve(ctx, callerID, s.cfg.CostPerTask)
	if errors.Is(err, budget.ErrLimitExceeded) {
		task.Error = budget.ErrLimitExceeded.Error()
		metrics.BudgetReservationsDenied.Inc()
		s.logger.Warn("Task denied by usage ledger",
			zap.String("task_id", task.ID),
			zap.String("caller_id", callerID),
			zap.String("capability", string(task.Capability)))
		return false
	}
	if err != nil {
		s.logger.Error("Usage ledger unavailable, admitting task",
			zap.String("task_id", task.ID),
			zap.Error(err))
	}
	return true
}

func (s *Scheduler) runTask(ctx context.Context, gate *capGate, task *models.Task) error {
	if err := gate.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire capability slot: %w", err)
	}
	defer gate.sem.Release(1)

	if err := gate.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	runCtx := ctx
	if s.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.TaskTimeout)
		defer cancel()
	}

	task.Status = models.TaskRunning
	result, err := s.runner.Run(runCtx, task)
	if err != nil {
		return err
	}
	task.Result = result
	return nil
}
