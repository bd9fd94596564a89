// Package engine is the resolve pipeline: extraction, intent annotation,
// planning, scheduled fetching and analysis, and synthesis, in that order.
package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/medwatch-ai/medwatch/internal/budget"
	"github.com/medwatch-ai/medwatch/internal/extract"
	"github.com/medwatch-ai/medwatch/internal/intent"
	"github.com/medwatch-ai/medwatch/internal/llm"
	"github.com/medwatch-ai/medwatch/internal/metrics"
	"github.com/medwatch-ai/medwatch/internal/models"
	"github.com/medwatch-ai/medwatch/internal/openfda"
	"github.com/medwatch-ai/medwatch/internal/planner"
	"github.com/medwatch-ai/medwatch/internal/scheduler"
	"github.com/medwatch-ai/medwatch/internal/specialists"
	"github.com/medwatch-ai/medwatch/internal/strategy"
	"github.com/medwatch-ai/medwatch/internal/synthesis"
)

// Result is everything a resolve produced: the final narrative plus the
// executed plan with its per-task results for callers that want the detail.
type Result struct {
	Synthesis *models.SynthesisResult
	Plan      *models.ExecutionPlan
}

// Engine resolves queries end to end.
type Engine struct {
	source    openfda.Source
	completer llm.Completer
	ledger    budget.Ledger
	fetchCfg  openfda.FetcherConfig
	schedCfg  scheduler.Config
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithFetcherConfig overrides pagination and retry bounds.
func WithFetcherConfig(cfg openfda.FetcherConfig) Option {
	return func(e *Engine) { e.fetchCfg = cfg }
}

// WithSchedulerConfig overrides concurrency and rate bounds.
func WithSchedulerConfig(cfg scheduler.Config) Option {
	return func(e *Engine) { e.schedCfg = cfg }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine. completer may be nil (deterministic-only analysis);
// ledger may be nil (no usage gating).
func New(source openfda.Source, completer llm.Completer, ledger budget.Ledger, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		source:    source,
		completer: completer,
		ledger:    ledger,
		fetchCfg:  openfda.DefaultFetcherConfig(),
		schedCfg:  scheduler.DefaultConfig(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve answers one query for one caller. sink may be nil. The pipeline
// aborts only when plan execution itself cannot proceed; individual task
// failures degrade to no-data markers in the synthesis.
func (e *Engine) Resolve(ctx context.Context, query, callerID string, sink scheduler.ProgressSink) (*Result, error) {
	tracer := otel.Tracer("medwatch/engine")
	ctx, span := tracer.Start(ctx, "engine.Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("query", query),
		attribute.String("caller_id", callerID),
	)

	metrics.ResolvesStarted.Inc()
	started := e.now()

	completer := e.meteredCompleter(callerID)

	entities, tf := extract.Extract(query, started)
	annotator := intent.NewAnnotator(completer, e.logger)
	in := annotator.Annotate(ctx, query, entities)

	plan := planner.Build(query, entities, tf, in, started)
	span.SetAttributes(
		attribute.String("query_type", string(plan.QueryType)),
		attribute.String("complexity", string(in.Complexity)),
		attribute.Int("tasks", len(plan.Tasks)),
	)
	e.logger.Info("Execution plan built",
		zap.String("query", query),
		zap.String("caller_id", callerID),
		zap.String("query_type", string(plan.QueryType)),
		zap.String("complexity", string(in.Complexity)),
		zap.Int("entities", len(entities)),
		zap.Int("tasks", len(plan.Tasks)))

	runner := &taskRunner{
		fetcher:    openfda.NewFetcher(e.source, e.fetchCfg, e.logger),
		aggregator: specialists.NewAggregator(completer, e.logger),
		now:        e.now,
	}
	sched := scheduler.New(runner, e.ledger, e.schedCfg, e.logger)
	if err := sched.Execute(ctx, plan, callerID, sink); err != nil {
		metrics.ResolvesCompleted.WithLabelValues("error").Inc()
		return nil, err
	}

	synth := synthesis.New(completer, e.logger).Synthesize(ctx, plan, e.now())

	metrics.ResolvesCompleted.WithLabelValues("ok").Inc()
	metrics.ResolveDuration.Observe(e.now().Sub(started).Seconds())
	e.logger.Info("Resolve completed",
		zap.String("caller_id", callerID),
		zap.Duration("elapsed", e.now().Sub(started)))

	return &Result{Synthesis: synth, Plan: plan}, nil
}

// meteredCompleter wraps the understanding-service client so every call's
// cost lands in the caller's ledger entry.
func (e *Engine) meteredCompleter(callerID string) llm.Completer {
	if e.completer == nil {
		return nil
	}
	if e.ledger == nil || callerID == "" {
		return e.completer
	}
	return &meteredCompleter{inner: e.completer, ledger: e.ledger, callerID: callerID, logger: e.logger}
}

type meteredCompleter struct {
	inner    llm.Completer
	ledger   budget.Ledger
	callerID string
	logger   *zap.Logger
}

func (m *meteredCompleter) Complete(ctx context.Context, systemContext, userContent string) (*llm.Completion, error) {
	completion, err := m.inner.Complete(ctx, systemContext, userContent)
	if err != nil {
		return nil, err
	}
	if completion.CostUSD > 0 {
		if recErr := m.ledger.RecordUsage(ctx, m.callerID, completion.CostUSD); recErr != nil {
			m.logger.Warn("Failed to record understanding-service usage",
				zap.String("caller_id", m.callerID),
				zap.Float64("cost_usd", completion.CostUSD),
				zap.Error(recErr))
		}
	}
	return completion, nil
}

// taskRunner executes one task: strategy cascade, fetch, analysis.
type taskRunner struct {
	fetcher    *openfda.Fetcher
	aggregator *specialists.Aggregator
	now        func() time.Time
}

func (r *taskRunner) Run(ctx context.Context, task *models.Task) (*models.AgentResult, error) {
	profile, err := specialists.ProfileFor(task.Capability)
	if err != nil {
		return nil, err
	}

	strategies := strategy.Build(task.TargetEntity, task.Params.Timeframe, profile.Search, r.now())
	fetch, err := r.fetcher.Run(ctx, profile.Endpoint, strategies, profile.Sort)
	if err != nil {
		return nil, err
	}
	return r.aggregator.Analyze(ctx, task, *fetch)
}
