package specialists

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

// Aggregator turns one task's fetched records into an AgentResult: aggregate
// statistics, citations, and cited findings. Findings come from the
// understanding service when it cooperates and from the statistics otherwise.
type Aggregator struct {
	completer llm.Completer
	logger    *zap.Logger
}

// NewAggregator builds an aggregator. completer may be nil, in which case
// every analysis uses the deterministic path.
func NewAggregator(completer llm.Completer, logger *zap.Logger) *Aggregator {
	return &Aggregator{completer: completer, logger: logger}
}

// Analyze produces the task result for the records fetched. The result's
// DataPointCount is the number of records analyzed, never the source's
// disclosed total. A zero-record fetch yields a valid empty result.
func (a *Aggregator) Analyze(ctx context.Context, task *models.Task, fetch models.FetchResult) (*models.AgentResult, error) {
	profile, err := ProfileFor(task.Capability)
	if err != nil {
		return nil, err
	}

	result := &models.AgentResult{
		Capability:     task.Capability,
		DataPointCount: len(fetch.Records),
		RawFetch:       fetch,
	}
	if len(fetch.Records) == 0 {
		return result, nil
	}

	result.Stats = ComputeStats(profile, fetch.Records)
	citations := ExtractCitations(profile, fetch.Records)

	findings := a.findingsFromService(ctx, task, profile, fetch, citations)
	if len(findings) == 0 {
		findings = fallbackFindings(task, profile, fetch, result.Stats, citations)
	}
	result.Findings = findings
	return result, nil
}

const findingsSystemPrompt = `You analyze regulatory device records. Respond with JSON only:
{"findings": [{"statement": "...", "citation_ids": [0, 2]}]}
Each statement must be a factual observation supported by the numbered records given. citation_ids index into that list. Produce at most 5 findings.`

type serviceFinding struct {
	Statement   string `json:"statement"`
	CitationIDs []int  `json:"citation_ids"`
}

type serviceFindings struct {
	Findings []serviceFinding `json:"findings"`
}

// findingsFromService asks the understanding service for cited findings.
// Any failure — transport, parse, or citation ids that do not validate —
// returns nil and the caller falls back.
func (a *Aggregator) findingsFromService(ctx context.Context, task *models.Task, p Profile, fetch models.FetchResult, citations []models.Citation) []models.Finding {
	if a.completer == nil || len(citations) == 0 {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Query subject: %s (%s)\n", task.TargetEntity.Name, task.TargetEntity.Kind)
	fmt.Fprintf(&sb, "Record category: %s, %d records analyzed (%d available at source)\n\n",
		p.RecordType, len(fetch.Records), fetch.TotalAvailable)
	sb.WriteString("Records:\n")
	for i, c := range citations {
		sb.WriteString(describeCitation(i, c))
		sb.WriteByte('\n')
	}

	completion, err := a.completer.Complete(ctx, findingsSystemPrompt, sb.String())
	if err != nil {
		a.logger.Warn("Understanding service failed for findings, using deterministic fallback",
			zap.String("capability", string(task.Capability)),
			zap.Error(err))
		metrics.LLMFallbacks.WithLabelValues("findings").Inc()
		return nil
	}

	block := llm.ExtractJSONBlock(completion.Text)
	if block == "" {
		metrics.LLMFallbacks.WithLabelValues("findings").Inc()
		return nil
	}
	var parsed serviceFindings
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		a.logger.Warn("Findings response did not parse, using deterministic fallback",
			zap.String("capability", string(task.Capability)),
			zap.Error(err))
		metrics.LLMFallbacks.WithLabelValues("findings").Inc()
		return nil
	}

	var findings []models.Finding
	for _, sf := range parsed.Findings {
		var cited []models.Citation
		for _, id := range sf.CitationIDs {
			if id >= 0 && id < len(citations) {
				cited = append(cited, citations[id])
			}
		}
		f, err := models.NewFinding(sf.Statement, cited)
		if err != nil {
			// Uncited statements are dropped, not repaired.
			continue
		}
		findings = append(findings, f)
	}
	return findings
}

// fallbackFindings derives findings directly from the aggregate statistics so
// a misbehaving understanding service never leaves analyzed records without a
// cited summary.
func fallbackFindings(task *models.Task, p Profile, fetch models.FetchResult, stats models.AggregateStats, citations []models.Citation) []models.Finding {
	if len(citations) == 0 {
		return nil
	}

	var findings []models.Finding
	add := func(statement string) {
		f, err := models.NewFinding(statement, citations)
		if err == nil {
			findings = append(findings, f)
		}
	}

	add(fmt.Sprintf("%d %s records match %q; the source reports %d in total.",
		len(fetch.Records), p.RecordType, task.TargetEntity.Name, fetch.TotalAvailable))

	for _, field := range p.FreqFields {
		table := stats.Frequencies[field]
		if len(table) == 0 {
			continue
		}
		top := table[0]
		add(fmt.Sprintf("The most common %s is %q (%d of %d records).",
			field, top.Value, top.Count, len(fetch.Records)))
		break
	}

	for _, field := range p.TopFields {
		table := stats.TopEntities[field]
		if len(table) == 0 {
			continue
		}
		add(fmt.Sprintf("Leading %s: %q with %d records.", field, table[0].Value, table[0].Count))
		break
	}

	for _, spec := range p.Distributions {
		dist, ok := stats.Distributions[spec.Name]
		if !ok {
			continue
		}
		add(fmt.Sprintf("Across %d records, %s averages %.0f days (median %.0f, p90 %.0f).",
			dist.Count, strings.ReplaceAll(spec.Name, "_", " "), dist.Mean, dist.Median, dist.P90))
	}

	return findings
}
