package spin

import (
	"errors"
	"fmt"
)

// ErrorKind is the caller-visible failure classification. Retry and backoff
// detail never leaks through it.
type ErrorKind string

const (
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindOutcomeFailure    ErrorKind = "outcome_computation_failure"
	KindSettlementFailure ErrorKind = "settlement_failure"
	KindRefundFailure     ErrorKind = "refund_failure"
	KindTransientStorage  ErrorKind = "transient_storage_failure"
	KindWorkflowConflict  ErrorKind = "workflow_conflict"
	KindInternal          ErrorKind = "internal"
)

// Error is the structured failure returned across the saga boundary.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsError maps any error to the structured boundary form. Known kinds pass
// through; everything else is internal.
func AsError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Kind: KindInternal, Message: err.Error()}
}
