package errors

import "fmt"

// DefaultFailureLimit is the number of consecutive transient failures that
// turns into a fatal stream error.
const DefaultFailureLimit = 3

// FailureBudget counts consecutive transient failures of one operation.
// Not safe for concurrent use; each loop owns its own budget.
type FailureBudget struct {
	op          string
	path        string
	limit       int
	consecutive int
	total       int
}

// NewFailureBudget creates a budget for op on path. A non-positive limit
// uses DefaultFailureLimit.
func NewFailureBudget(op, path string, limit int) *FailureBudget {
	if limit <= 0 {
		limit = DefaultFailureLimit
	}
	return &FailureBudget{op: op, path: path, limit: limit}
}

// Failure records a failed attempt. It returns nil while the failure is
// still recoverable and a fatal KindStream error once the limit is reached.
func (b *FailureBudget) Failure(err error) error {
	b.consecutive++
	b.total++
	if b.consecutive < b.limit {
		return nil
	}
	return Wrap(err, KindStream, b.op,
		fmt.Sprintf("%d consecutive failures", b.consecutive)).WithPath(b.path)
}

// Success resets the consecutive failure count.
func (b *FailureBudget) Success() {
	b.consecutive = 0
}

// Consecutive returns the current run of failures.
func (b *FailureBudget) Consecutive() int {
	return b.consecutive
}

// Total returns all failures recorded so far.
func (b *FailureBudget) Total() int {
	return b.total
}
