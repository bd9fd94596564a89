// Package synthesis combines the terminal results of an executed plan into
// one narrative answer. It runs strictly after the scheduler's barrier:
// every task it reads is terminal and immutable.
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medwatch-ai/medwatch/internal/llm"
	"github.com/medwatch-ai/medwatch/internal/metrics"
	"github.com/medwatch-ai/medwatch/internal/models"
)

// Synthesizer builds the final narrative. The understanding service writes
// it when available; a template rendering of the digests stands in otherwise,
// so synthesis itself never fails.
type Synthesizer struct {
	completer llm.Completer
	logger    *zap.Logger
}

// New builds a synthesizer. completer may be nil; the narrative is then
// always the deterministic rendering.
func New(completer llm.Completer, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{completer: completer, logger: logger}
}

const synthesisSystemPrompt = `You write concise intelligence summaries of medical device regulatory data. You are given per-category digests of findings that were extracted from real records; failed categories are marked as having no data. Write 2-4 paragraphs of plain prose. State what the data shows, note which categories had no data, and do not invent facts beyond the digests.`

// Synthesize produces the answer for an executed plan. Failed tasks
// contribute explicit no-data markers instead of being silently dropped, so
// the caller can see which record categories are missing from the narrative.
func (s *Synthesizer) Synthesize(ctx context.Context, plan *models.ExecutionPlan, now time.Time) *models.SynthesisResult {
	digests := buildDigests(plan)
	fallback := renderFallback(plan, digests, now)

	if s.completer == nil || !anySucceeded(plan) {
		return &models.SynthesisResult{Narrative: fallback, GeneratedAt: now}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", plan.Query)
	for _, d := range digests {
		sb.WriteString(d)
		sb.WriteString("\n\n")
	}

	completion, err := s.completer.Complete(ctx, synthesisSystemPrompt, sb.String())
	if err != nil || strings.TrimSpace(completion.Text) == "" {
		s.logger.Warn("Understanding service failed for synthesis, using deterministic rendering",
			zap.Error(err))
		metrics.LLMFallbacks.WithLabelValues("synthesis").Inc()
		return &models.SynthesisResult{Narrative: fallback, GeneratedAt: now}
	}

	return &models.SynthesisResult{Narrative: strings.TrimSpace(completion.Text), GeneratedAt: now}
}

// buildDigests renders one digest per task, completed or failed, in plan
// order.
func buildDigests(plan *models.ExecutionPlan) []string {
	digests := make([]string, 0, len(plan.Tasks))
	for _, task := range plan.Tasks {
		digests = append(digests, digestTask(task))
	}
	return digests
}

func digestTask(task *models.Task) string {
	header := fmt.Sprintf("%s for %q", task.Capability, task.TargetEntity.Name)

	if task.Status != models.TaskCompleted || task.Result == nil {
		reason := task.Error
		if reason == "" {
			reason = "task did not complete"
		}
		return fmt.Sprintf("%s: no data available (%s)", header, reason)
	}

	result := task.Result
	if result.DataPointCount == 0 {
		return fmt.Sprintf("%s: no matching records found", header)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d records analyzed (%d available at source, strategy %s)",
		header, result.DataPointCount, result.RawFetch.TotalAvailable, result.RawFetch.StrategyUsed)
	for _, f := range result.Findings {
		fmt.Fprintf(&sb, "\n  - %s [%s]", f.Statement, citationIDs(f.Citations))
	}
	return sb.String()
}

func citationIDs(citations []models.Citation) string {
	ids := make([]string, 0, len(citations))
	for _, c := range citations {
		ids = append(ids, c.RecordID)
	}
	const maxShown = 3
	if len(ids) > maxShown {
		ids = append(ids[:maxShown], fmt.Sprintf("+%d more", len(ids)-maxShown))
	}
	return strings.Join(ids, ", ")
}

func anySucceeded(plan *models.ExecutionPlan) bool {
	for _, task := range plan.Tasks {
		if task.Status == models.TaskCompleted && task.Result != nil && task.Result.DataPointCount > 0 {
			return true
		}
	}
	return false
}

// renderFallback is the deterministic narrative: a summary line plus the raw
// digests.
func renderFallback(plan *models.ExecutionPlan, digests []string, now time.Time) string {
	completed, failed, records := 0, 0, 0
	for _, task := range plan.Tasks {
		switch {
		case task.Status == models.TaskCompleted && task.Result != nil:
			completed++
			records += task.Result.DataPointCount
		default:
			failed++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Results for %q as of %s: %d of %d lookups completed, %d records analyzed.",
		plan.Query, now.Format("2006-01-02"), completed, completed+failed, records)
	if failed > 0 {
		fmt.Fprintf(&sb, " %d lookups returned no data.", failed)
	}
	sb.WriteString("\n")
	for _, d := range digests {
		sb.WriteString("\n")
		sb.WriteString(d)
	}
	return sb.String()
}
