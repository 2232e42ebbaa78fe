package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wesm/contractlens/internal/snapshot"
)

// ErrCancelled is matched by errors.Is for every *CancelledError.
var ErrCancelled = errors.New("cancelled")

// TimeoutError reports that an operation exceeded its wall-clock budget.
// No partial result accompanies it.
type TimeoutError struct {
	Op     string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s exceeded time budget of %s", e.Op, e.Budget)
}

// CancelledError reports a client-initiated stop of an export.
type CancelledError struct {
	RowsEmitted int64
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("export cancelled after %d rows", e.RowsEmitted)
}

func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// InternalInconsistencyError reports rollup data that contradicts itself
// or the manifest. It indicates a corrupt snapshot and is never absorbed.
type InternalInconsistencyError struct {
	Entity string
	Detail string
}

func (e *InternalInconsistencyError) Error() string {
	if e.Entity == "" {
		return "internal inconsistency: " + e.Detail
	}
	return fmt.Sprintf("internal inconsistency for %q: %s", e.Entity, e.Detail)
}

// DegradedPlanWarning describes a rollup plan that fell back to a fact
// scan because buckets were missing. It is logged, not returned.
type DegradedPlanWarning struct {
	Dimension snapshot.Dimension
	Missing   []snapshot.Bucket
}

func (w DegradedPlanWarning) String() string {
	keys := make([]string, len(w.Missing))
	for i, b := range w.Missing {
		keys[i] = b.Key()
	}
	return fmt.Sprintf("missing %s rollups for buckets %v; scanning facts", w.Dimension, keys)
}

// IsInconsistency reports whether err wraps an *InternalInconsistencyError.
func IsInconsistency(err error) bool {
	var ie *InternalInconsistencyError
	return errors.As(err, &ie)
}

// budgetError converts a deadline expiry into a *TimeoutError. Other
// errors pass through unchanged.
func budgetError(ctx context.Context, op string, budget time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Budget: budget}
	}
	return err
}
