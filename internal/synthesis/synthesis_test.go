package synthesis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/medwatch-ai/medwatch/internal/llm"
	"github.com/medwatch-ai/medwatch/internal/models"
)

var testNow = time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)

type stubCompleter struct {
	text     string
	err      error
	received string
}

func (s *stubCompleter) Complete(_ context.Context, _, userContent string) (*llm.Completion, error) {
	s.received = userContent
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Completion{Text: s.text}, nil
}

func completedTask(capability models.Capability, n int) *models.Task {
	finding, _ := models.NewFinding("Malfunctions dominate recent reports.",
		[]models.Citation{{RecordID: "MDR-1", RecordType: "adverse_event"}})
	return &models.Task{
		ID:           "t-" + string(capability),
		Capability:   capability,
		TargetEntity: models.Entity{Name: "pacemaker", Kind: models.EntityDevice},
		Status:       models.TaskCompleted,
		Result: &models.AgentResult{
			Capability:     capability,
			DataPointCount: n,
			Findings:       []models.Finding{finding},
			RawFetch:       models.FetchResult{StrategyUsed: "exact", TotalAvailable: n * 10},
		},
	}
}

func failedTask(capability models.Capability, reason string) *models.Task {
	return &models.Task{
		ID:           "t-" + string(capability),
		Capability:   capability,
		TargetEntity: models.Entity{Name: "pacemaker", Kind: models.EntityDevice},
		Status:       models.TaskFailed,
		Error:        reason,
	}
}

func planWith(tasks ...*models.Task) *models.ExecutionPlan {
	return &models.ExecutionPlan{Query: "pacemaker safety issues", Tasks: tasks, CreatedAt: testNow}
}

func TestSynthesizeUsesServiceNarrative(t *testing.T) {
	stub := &stubCompleter{text: "Pacemaker adverse events are dominated by malfunctions."}
	s := New(stub, zap.NewNop())

	plan := planWith(completedTask(models.CapabilityEvents, 50))
	result := s.Synthesize(context.Background(), plan, testNow)

	assert.Equal(t, "Pacemaker adverse events are dominated by malfunctions.", result.Narrative)
	assert.Equal(t, testNow, result.GeneratedAt)
	assert.Contains(t, stub.received, "pacemaker safety issues")
	assert.Contains(t, stub.received, "50 records analyzed")
}

func TestSynthesizeFailedTasksBecomeNoDataMarkers(t *testing.T) {
	stub := &stubCompleter{text: "summary"}
	s := New(stub, zap.NewNop())

	plan := planWith(
		completedTask(models.CapabilityEvents, 10),
		failedTask(models.CapabilityRecalls, "usage limit reached"),
	)
	s.Synthesize(context.Background(), plan, testNow)

	assert.Contains(t, stub.received, "RECALLS")
	assert.Contains(t, stub.received, "no data available (usage limit reached)")
}

func TestSynthesizeFallbackOnServiceError(t *testing.T) {
	s := New(&stubCompleter{err: errors.New("down")}, zap.NewNop())

	plan := planWith(
		completedTask(models.CapabilityEvents, 10),
		failedTask(models.CapabilityRecalls, "source unavailable"),
	)
	result := s.Synthesize(context.Background(), plan, testNow)

	assert.Contains(t, result.Narrative, "1 of 2 lookups completed")
	assert.Contains(t, result.Narrative, "10 records analyzed")
	assert.Contains(t, result.Narrative, "no data available (source unavailable)")
	assert.Contains(t, result.Narrative, "MDR-1")
}

func TestSynthesizeAllFailedSkipsService(t *testing.T) {
	stub := &stubCompleter{text: "should not be used"}
	s := New(stub, zap.NewNop())

	plan := planWith(
		failedTask(models.CapabilityEvents, "a"),
		failedTask(models.CapabilityRecalls, "b"),
	)
	result := s.Synthesize(context.Background(), plan, testNow)

	assert.Empty(t, stub.received, "service must not be called when nothing succeeded")
	assert.Contains(t, result.Narrative, "0 of 2 lookups completed")
}

func TestSynthesizeZeroRecordCompletionIsNotSuccessForServiceCall(t *testing.T) {
	stub := &stubCompleter{text: "should not be used"}
	s := New(stub, zap.NewNop())

	plan := planWith(completedTask(models.CapabilityEvents, 0))
	result := s.Synthesize(context.Background(), plan, testNow)

	assert.Empty(t, stub.received)
	assert.Contains(t, result.Narrative, "no matching records found")
}

func TestSynthesizeNilCompleterRendersDeterministically(t *testing.T) {
	s := New(nil, zap.NewNop())
	plan := planWith(completedTask(models.CapabilityEvents, 5))

	result := s.Synthesize(context.Background(), plan, testNow)
	assert.Contains(t, result.Narrative, "2026-08-30")
	assert.Contains(t, result.Narrative, "Malfunctions dominate recent reports.")
}
