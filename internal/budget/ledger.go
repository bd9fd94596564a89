// Package budget tracks per-caller usage against a spending limit. The
// ledger hardens the check-then-record pattern into an atomic reservation so
// concurrent tasks cannot jointly overshoot the limit.
package budget

import (
	"context"
	"fmt"
)

// ErrLimitExceeded reports a denied reservation. Callers treat it as a
// business outcome, not a transport failure.
var ErrLimitExceeded = fmt.Errorf("usage limit reached")

// Usage is a caller's current position against its limit.
type Usage struct {
	CallerID  string
	Spent     float64
	Limit     float64
	Remaining float64
}

// Ledger is the per-caller usage accounting interface.
//
// TryReserve atomically checks the limit and records the amount; it returns
// ErrLimitExceeded when the reservation would overshoot. CheckLimit and
// RecordUsage remain for advisory reads and post-hoc corrections; concurrent
// admission decisions must go through TryReserve.
type Ledger interface {
	CheckLimit(ctx context.Context, callerID string) (*Usage, error)
	RecordUsage(ctx context.Context, callerID string, amount float64) error
	TryReserve(ctx context.Context, callerID string, amount float64) (*Usage, error)
}
