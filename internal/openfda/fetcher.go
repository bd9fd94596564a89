package openfda

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/medwatch-ai/medwatch/internal/metrics"
	"github.com/medwatch-ai/medwatch/internal/models"
)

// FetcherConfig bounds pagination and retry behavior.
type FetcherConfig struct {
	PageSize    int           // records per page request
	MaxRecords  int           // hard cap on records fetched per task
	MaxAttempts int           // attempts per page, including the first
	BackoffBase time.Duration // first retry delay, doubled per attempt
	BackoffMax  time.Duration // ceiling on a single backoff sleep
}

// DefaultFetcherConfig matches the source's effective limits.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		PageSize:    50,
		MaxRecords:  500,
		MaxAttempts: 3,
		BackoffBase: 500 * time.Millisecond,
		BackoffMax:  5 * time.Second,
	}
}

func (c FetcherConfig) withDefaults() FetcherConfig {
	d := DefaultFetcherConfig()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.MaxRecords <= 0 {
		c.MaxRecords = d.MaxRecords
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = d.BackoffMax
	}
	return c
}

// Fetcher runs a strategy cascade against a source endpoint and paginates
// the adopted strategy.
type Fetcher struct {
	source Source
	cfg    FetcherConfig
	logger *zap.Logger
}

// NewFetcher builds a fetcher. Zero config fields fall back to defaults.
func NewFetcher(source Source, cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	return &Fetcher{source: source, cfg: cfg.withDefaults(), logger: logger}
}

// Run tries the strategies strictly in order. The first strategy whose
// initial probe returns at least one record is adopted for the remainder of
// the fetch; results from different strategies are never merged. If every
// strategy probes empty, the result is a successful zero-record fetch.
//
// A transient failure that exhausts retries mid-pagination preserves the
// pages already fetched; the same failure before any page was fetched is
// returned as an error so the caller can fail the task.
func (f *Fetcher) Run(ctx context.Context, endpoint string, strategies []models.SearchStrategy, sort string) (*models.FetchResult, error) {
	for _, strat := range strategies {
		page, err := f.fetchPage(ctx, Request{
			Endpoint: endpoint,
			Query:    strat.FormulatedQuery,
			Sort:     sort,
			Offset:   0,
			Limit:    f.cfg.PageSize,
		})
		if err != nil {
			if IsTransient(err) {
				// Zero pages fetched for this task: the transient failure is
				// the task's failure.
				return nil, err
			}
			// The source rejected this formulation; the next strategy may
			// still work.
			f.logger.Warn("Strategy rejected by source, trying next",
				zap.String("strategy", strat.Name),
				zap.Error(err))
			continue
		}
		if len(page.Records) == 0 {
			continue
		}

		return f.paginate(ctx, endpoint, strat, sort, page)
	}

	// All strategies probed empty. This is a successful zero-result fetch,
	// not an error.
	return &models.FetchResult{TotalAvailable: 0, Records: nil}, nil
}

// paginate extends the adopted strategy's first page until the record cap,
// the source's disclosed total, or an empty page is reached. Pages are
// fetched in strictly increasing offset order.
func (f *Fetcher) paginate(ctx context.Context, endpoint string, strat models.SearchStrategy, sort string, first *Page) (*models.FetchResult, error) {
	total := first.TotalAvailable
	if total < len(first.Records) {
		total = len(first.Records)
	}
	records := append([]models.RawRecord(nil), first.Records...)

	for len(records) < f.cfg.MaxRecords && len(records) < total {
		limit := f.cfg.PageSize
		if remaining := f.cfg.MaxRecords - len(records); remaining < limit {
			limit = remaining
		}

		page, err := f.fetchPage(ctx, Request{
			Endpoint: endpoint,
			Query:    strat.FormulatedQuery,
			Sort:     sort,
			Offset:   len(records),
			Limit:    limit,
		})
		if err != nil {
			// Partial result: keep the pages already fetched.
			f.logger.Warn("Pagination aborted, keeping partial result",
				zap.String("strategy", strat.Name),
				zap.Int("fetched", len(records)),
				zap.Error(err))
			break
		}
		if len(page.Records) == 0 {
			break
		}
		records = append(records, page.Records...)
	}

	if len(records) > f.cfg.MaxRecords {
		records = records[:f.cfg.MaxRecords]
	}

	metrics.FetchRecords.Add(float64(len(records)))
	return &models.FetchResult{
		StrategyUsed:   strat.Name,
		TotalAvailable: total,
		Records:        records,
	}, nil
}

// fetchPage issues one page request with bounded exponential backoff on
// transient errors. Permanent errors return immediately.
func (f *Fetcher) fetchPage(ctx context.Context, req Request) (*Page, error) {
	var lastErr error
	backoff := f.cfg.BackoffBase

	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		page, err := f.source.Fetch(ctx, req)
		if err == nil {
			metrics.FetchPages.Inc()
			return page, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return nil, err
		}
		if attempt == f.cfg.MaxAttempts {
			break
		}

		metrics.FetchRetries.Inc()
		f.logger.Debug("Transient source error, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, NewTransientError(0, "context canceled during backoff", ctx.Err())
		case <-timer.C:
		}

		backoff *= 2
		if backoff > f.cfg.BackoffMax {
			backoff = f.cfg.BackoffMax
		}
	}
	return nil, lastErr
}
