package rollout

import (
	"github.com/pkg/errors"
)

// ErrSuperseded reports that a newer desired state was published
// while the rollout was in flight. The plan is abandoned, not rolled
// back; the next reconciliation tick plans against the new target.
// This is an outcome, not a failure.
var ErrSuperseded = errors.New("rollout superseded by newer desired state")

// FailedError reports that the rollout exhausted its health-gate
// retry budget (or its overall deadline) and has halted. No further
// instances are replaced and nothing is rolled back; recovering is
// an external policy decision.
type FailedError struct {
	Reason string
}

func (e *FailedError) Error() string {
	return "rollout failed: " + e.Reason
}

// IsFailed reports whether err is (or wraps) a FailedError.
func IsFailed(err error) bool {
	_, ok := errors.Cause(err).(*FailedError)
	return ok
}

// IsSuperseded reports whether err is (or wraps) ErrSuperseded.
func IsSuperseded(err error) bool {
	return errors.Cause(err) == ErrSuperseded
}
