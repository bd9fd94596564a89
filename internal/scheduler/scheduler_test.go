package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medwatch-ai/medwatch/internal/budget"
	"github.com/medwatch-ai/medwatch/internal/models"
)

type fakeRunner struct {
	mu         sync.Mutex
	running    int32
	maxRunning int32
	delay      time.Duration
	failIDs    map[string]bool
	ran        []string
}

func (r *fakeRunner) Run(ctx context.Context, task *models.Task) (*models.AgentResult, error) {
	cur := atomic.AddInt32(&r.running, 1)
	defer atomic.AddInt32(&r.running, -1)
	for {
		max := atomic.LoadInt32(&r.maxRunning)
		if cur <= max || atomic.CompareAndSwapInt32(&r.maxRunning, max, cur) {
			break
		}
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	r.ran = append(r.ran, task.ID)
	r.mu.Unlock()

	if r.failIDs[task.ID] {
		return nil, errors.New("synthetic task failure")
	}
	return &models.AgentResult{Capability: task.Capability, DataPointCount: 1}, nil
}

func makePlan(n int, capability models.Capability) *models.ExecutionPlan {
	plan := &models.ExecutionPlan{Query: "test", CreatedAt: time.Now()}
	for i := 0; i < n; i++ {
		plan.Tasks = append(plan.Tasks, &models.Task{
			ID:           string(rune('a' + i)),
			Capability:   capability,
			TargetEntity: models.Entity{Name: "pacemaker", Kind: models.EntityDevice},
			Status:       models.TaskPending,
		})
	}
	return plan
}

func testConfig() Config {
	return Config{MaxConcurrent: 2, RequestsPerSecond: 1000, CostPerTask: 0.01}
}

func TestExecuteAllTasksReachTerminalState(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, nil, testConfig(), zap.NewNop())
	plan := makePlan(5, models.CapabilityEvents)

	require.NoError(t, s.Execute(context.Background(), plan, "caller", nil))
	for _, task := range plan.Tasks {
		assert.True(t, task.Status.Terminal(), "task %s status %s", task.ID, task.Status)
		assert.Equal(t, models.TaskCompleted, task.Status)
		assert.NotNil(t, task.Result)
	}
}

func TestExecuteFailureDoesNotCancelSiblings(t *testing.T) {
	runner := &fakeRunner{failIDs: map[string]bool{"b": true}}
	s := New(runner, nil, testConfig(), zap.NewNop())
	plan := makePlan(4, models.CapabilityEvents)

	require.NoError(t, s.Execute(context.Background(), plan, "caller", nil))

	completed := 0
	for _, task := range plan.Tasks {
		if task.Status == models.TaskCompleted {
			completed++
		} else {
			assert.Equal(t, models.TaskFailed, task.Status)
			assert.Equal(t, "synthetic task failure", task.Error)
			assert.Nil(t, task.Result)
		}
	}
	assert.Equal(t, 3, completed)
}

func TestExecuteRespectsPerCapabilityConcurrency(t *testing.T) {
	runner := &fakeRunner{delay: 30 * time.Millisecond}
	s := New(runner, nil, testConfig(), zap.NewNop())
	plan := makePlan(6, models.CapabilityEvents)

	require.NoError(t, s.Execute(context.Background(), plan, "caller", nil))
	assert.LessOrEqual(t, runner.maxRunning, int32(2))
}

func TestExecuteProgressIsMonotoneAndReaches100(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, nil, testConfig(), zap.NewNop())
	plan := makePlan(4, models.CapabilityEvents)

	var percents []int
	sink := func(pct int, msg string) {
		percents = append(percents, pct)
		assert.NotEmpty(t, msg)
	}
	require.NoError(t, s.Execute(context.Background(), plan, "caller", sink))

	require.Len(t, percents, 4)
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1])
	}
	assert.Equal(t, 100, percents[len(percents)-1])
}

func TestExecuteBudgetDenialMarksTaskFailedWithoutDispatch(t *testing.T) {
	runner := &fakeRunner{}
	ledger := budget.NewMemoryLedger(0.025) // admits 2 tasks at 0.01 each
	s := New(runner, ledger, testConfig(), zap.NewNop())
	plan := makePlan(5, models.CapabilityEvents)

	require.NoError(t, s.Execute(context.Background(), plan, "caller", nil))

	denied := 0
	for _, task := range plan.Tasks {
		if task.Error == budget.ErrLimitExceeded.Error() {
			denied++
			assert.Equal(t, models.TaskFailed, task.Status)
			assert.Nil(t, task.Result)
		}
	}
	assert.Equal(t, 3, denied)
	assert.Len(t, runner.ran, 2, "denied tasks must never reach the runner")
}

func TestExecuteNoLedgerAdmitsEverything(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, nil, testConfig(), zap.NewNop())
	plan := makePlan(3, models.CapabilityRecalls)

	require.NoError(t, s.Execute(context.Background(), plan, "", nil))
	assert.Len(t, runner.ran, 3)
}

func TestExecuteEmptyPlanReportsDone(t *testing.T) {
	s := New(&fakeRunner{}, nil, testConfig(), zap.NewNop())
	plan := &models.ExecutionPlan{Query: "test"}

	called := false
	require.NoError(t, s.Execute(context.Background(), plan, "caller", func(pct int, _ string) {
		called = true
		assert.Equal(t, 100, pct)
	}))
	assert.True(t, called)

	assert.Error(t, s.Execute(context.Background(), nil, "caller", nil))
}
