package budget

import (
	"context"
	"sync"
)

// MemoryLedger is the in-process ledger used when no Redis is configured and
// in tests. A single mutex covers every caller; contention is negligible at
// the per-resolve call rates involved.
type MemoryLedger struct {
	mu           sync.Mutex
	spent        map[string]float64
	defaultLimit float64
	limits       map[string]float64
}

// NewMemoryLedger builds an in-process ledger with one default limit.
func NewMemoryLedger(defaultLimit float64) *MemoryLedger {
	return &MemoryLedger{
		spent:        make(map[string]float64),
		defaultLimit: defaultLimit,
		limits:       make(map[string]float64),
	}
}

// SetLimit overrides the limit for one caller.
func (l *MemoryLedger) SetLimit(callerID string, limit float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[callerID] = limit
}

func (l *MemoryLedger) limitFor(callerID string) float64 {
	if limit, ok := l.limits[callerID]; ok {
		return limit
	}
	return l.defaultLimit
}

// CheckLimit returns the caller's current position. Advisory only.
func (l *MemoryLedger) CheckLimit(_ context.Context, callerID string) (*Usage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usageLocked(callerID), nil
}

// RecordUsage adds to the caller's spend unconditionally.
func (l *MemoryLedger) RecordUsage(_ context.Context, callerID string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spent[callerID] += amount
	return nil
}

// TryReserve admits the amount only if it fits under the limit.
func (l *MemoryLedger) TryReserve(_ context.Context, callerID string, amount float64) (*Usage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := l.limitFor(callerID)
	if limit > 0 && l.spent[callerID]+amount > limit {
		return l.usageLocked(callerID), ErrLimitExceeded
	}
	l.spent[callerID] += amount
	return l.usageLocked(callerID), nil
}

func (l *MemoryLedger) usageLocked(callerID string) *Usage {
	limit := l.limitFor(callerID)
	spent := l.spent[callerID]
	remaining := limit - spent
	if limit <= 0 {
		remaining = 0
	}
	return &Usage{CallerID: callerID, Spent: spent, Limit: limit, Remaining: remaining}
}
