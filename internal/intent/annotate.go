package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/medwatch-ai/medwatch/internal/llm"
	"github.com/medwatch-ai/medwatch/internal/metrics"
	"github.com/medwatch-ai/medwatch/internal/models"
)

// Annotator enriches the deterministic classification with goals and
// implicit concerns from the understanding service.
type Annotator struct {
	completer llm.Completer
	logger    *zap.Logger
}

// NewAnnotator builds an annotator. completer may be nil; annotation then
// always uses the fixed fallback.
func NewAnnotator(completer llm.Completer, logger *zap.Logger) *Annotator {
	return &Annotator{completer: completer, logger: logger}
}

const annotateSystemPrompt = `You classify medical device data queries. Respond with JSON only:
{"primary_goal": "...", "implicit_concerns": ["..."], "time_sensitivity": "current|historical|both"}
primary_goal is one short phrase. implicit_concerns lists unstated aspects the caller likely cares about, at most 4.`

type annotation struct {
	PrimaryGoal      string   `json:"primary_goal"`
	ImplicitConcerns []string `json:"implicit_concerns"`
	TimeSensitivity  string   `json:"time_sensitivity"`
}

// Annotate resolves the full intent for a query. Complexity always comes
// from Classify; the service contributes only the goal, concerns, and time
// sensitivity, and a non-conforming response degrades to the fixed fallback
// rather than aborting resolution.
func (a *Annotator) Annotate(ctx context.Context, query string, entities []models.Entity) models.Intent {
	out := fallbackIntent()
	out.Complexity = Classify(query, entities)

	if a.completer == nil {
		return out
	}

	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, fmt.Sprintf("%s (%s)", e.Name, e.Kind))
	}
	userContent := fmt.Sprintf("Query: %s\nExtracted subjects: %s", query, strings.Join(names, ", "))

	completion, err := a.completer.Complete(ctx, annotateSystemPrompt, userContent)
	if err != nil {
		a.logger.Warn("Understanding service failed for intent annotation, using fallback", zap.Error(err))
		metrics.LLMFallbacks.WithLabelValues("intent").Inc()
		return out
	}

	block := llm.ExtractJSONBlock(completion.Text)
	if block == "" {
		metrics.LLMFallbacks.WithLabelValues("intent").Inc()
		return out
	}
	var parsed annotation
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		a.logger.Warn("Intent annotation did not parse, using fallback", zap.Error(err))
		metrics.LLMFallbacks.WithLabelValues("intent").Inc()
		return out
	}

	if g := strings.TrimSpace(parsed.PrimaryGoal); g != "" {
		out.PrimaryGoal = g
	}
	if len(parsed.ImplicitConcerns) > 0 {
		concerns := parsed.ImplicitConcerns
		if len(concerns) > 4 {
			concerns = concerns[:4]
		}
		out.ImplicitConcerns = concerns
	}
	switch parsed.TimeSensitivity {
	case "current", "historical", "both":
		out.TimeSensitivity = parsed.TimeSensitivity
	}
	return out
}

// fallbackIntent is the fixed annotation used whenever the understanding
// service is unavailable or non-conforming.
func fallbackIntent() models.Intent {
	return models.Intent{
		PrimaryGoal:      "analyze",
		ImplicitConcerns: []string{},
		TimeSensitivity:  "current",
	}
}
