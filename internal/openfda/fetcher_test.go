package openfda

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medwatch-ai/medwatch/internal/models"
)

// fakeSource scripts per-query behavior for fetcher tests.
type fakeSource struct {
	total    map[string]int // query -> disclosed total
	failures []error        // consumed before any successful fetch
	calls    []Request
}

func (s *fakeSource) Fetch(_ context.Context, req Request) (*Page, error) {
	s.calls = append(s.calls, req)
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return nil, err
	}
	total, ok := s.total[req.Query]
	if !ok || total == 0 {
		return &Page{}, nil
	}
	var records []models.RawRecord
	for i := req.Offset; i < total && len(records) < req.Limit; i++ {
		records = append(records, models.RawRecord{"index": fmt.Sprintf("%d", i)})
	}
	return &Page{Records: records, TotalAvailable: total}, nil
}

func fastConfig() FetcherConfig {
	return FetcherConfig{
		PageSize:    50,
		MaxRecords:  500,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
	}
}

func strategiesOf(queries ...string) []models.SearchStrategy {
	out := make([]models.SearchStrategy, len(queries))
	for i, q := range queries {
		out[i] = models.SearchStrategy{Name: fmt.Sprintf("strategy-%d", i), FormulatedQuery: q}
	}
	return out
}

func TestCascadeAdoptsFirstNonEmptyStrategy(t *testing.T) {
	src := &fakeSource{total: map[string]int{"q1": 37, "q2": 99}}
	f := NewFetcher(src, fastConfig(), zap.NewNop())

	res, err := f.Run(context.Background(), "/device/event.json", strategiesOf("q0", "q1", "q2"), "")
	require.NoError(t, err)

	assert.Equal(t, "strategy-1", res.StrategyUsed)
	assert.Equal(t, 37, res.TotalAvailable, "total must come from the adopted strategy, never summed")
	assert.Len(t, res.Records, 37)

	// Strategy 2 must never be probed once strategy 1 succeeded.
	for _, call := range src.calls {
		assert.NotEqual(t, "q2", call.Query)
	}
}

func TestAllStrategiesEmptyIsZeroResultSuccess(t *testing.T) {
	src := &fakeSource{total: map[string]int{}}
	f := NewFetcher(src, fastConfig(), zap.NewNop())

	res, err := f.Run(context.Background(), "/device/recall.json", strategiesOf("q0", "q1"), "")
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Zero(t, res.TotalAvailable)
	assert.Empty(t, res.StrategyUsed)
}

func TestPaginationContiguousNoDuplicates(t *testing.T) {
	src := &fakeSource{total: map[string]int{"q": 400}}
	cfg := fastConfig()
	cfg.PageSize = 50
	cfg.MaxRecords = 120
	f := NewFetcher(src, cfg, zap.NewNop())

	res, err := f.Run(context.Background(), "/device/event.json", strategiesOf("q"), "")
	require.NoError(t, err)

	require.Len(t, res.Records, 120)
	for i, rec := range res.Records {
		assert.Equal(t, fmt.Sprintf("%d", i), rec.StringField("index"), "records must be contiguous with no gaps")
	}
	assert.Equal(t, 400, res.TotalAvailable)
}

func TestPaginationStopsAtDisclosedTotal(t *testing.T) {
	src := &fakeSource{total: map[string]int{"q": 72}}
	f := NewFetcher(src, fastConfig(), zap.NewNop())

	res, err := f.Run(context.Background(), "/device/event.json", strategiesOf("q"), "")
	require.NoError(t, err)
	assert.Len(t, res.Records, 72)
}

func TestSingleTransientFailureInvisibleToCaller(t *testing.T) {
	src := &fakeSource{
		total:    map[string]int{"q": 10},
		failures: []error{NewTransientError(429, "rate limited", nil)},
	}
	f := NewFetcher(src, fastConfig(), zap.NewNop())

	res, err := f.Run(context.Background(), "/device/event.json", strategiesOf("q"), "")
	require.NoError(t, err)
	assert.Len(t, res.Records, 10)
	// One failed attempt plus one successful probe: exactly one extra call.
	assert.Len(t, src.calls, 2)
}

func TestTransientExhaustionWithZeroPagesFails(t *testing.T) {
	src := &fakeSource{
		total: map[string]int{"q": 10},
		failures: []error{
			NewTransientError(500, "server error", nil),
			NewTransientError(500, "server error", nil),
			NewTransientError(500, "server error", nil),
		},
	}
	f := NewFetcher(src, fastConfig(), zap.NewNop())

	_, err := f.Run(context.Background(), "/device/event.json", strategiesOf("q"), "")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestTransientExhaustionMidPaginationKeepsPartial(t *testing.T) {
	src := &fakeSource{total: map[string]int{"q": 200}}
	cfg := fastConfig()
	cfg.PageSize = 50
	f := NewFetcher(src, cfg, zap.NewNop())

	// Let the probe succeed, then fail every subsequent page request.
	srcWrapped := &failAfterFirst{inner: src}
	f = NewFetcher(srcWrapped, cfg, zap.NewNop())

	res, err := f.Run(context.Background(), "/device/event.json", strategiesOf("q"), "")
	require.NoError(t, err)
	assert.Equal(t, "strategy-0", res.StrategyUsed)
	assert.Len(t, res.Records, 50, "first page must be preserved as a partial result")
}

type failAfterFirst struct {
	inner *fakeSource
	count int
}

func (s *failAfterFirst) Fetch(ctx context.Context, req Request) (*Page, error) {
	s.count++
	if s.count > 1 {
		return nil, NewTransientError(503, "unavailable", nil)
	}
	return s.inner.Fetch(ctx, req)
}

func TestPermanentErrorOnProbeAdvancesToNextStrategy(t *testing.T) {
	src := &fakeSource{
		total:    map[string]int{"q1": 5},
		failures: []error{NewPermanentError(400, "bad query", nil)},
	}
	f := NewFetcher(src, fastConfig(), zap.NewNop())

	res, err := f.Run(context.Background(), "/device/event.json", strategiesOf("q0", "q1"), "")
	require.NoError(t, err)
	assert.Equal(t, "strategy-1", res.StrategyUsed)
	assert.Len(t, res.Records, 5)
}
