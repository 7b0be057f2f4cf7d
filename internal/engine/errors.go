package engine

import (
	"errors"
	"fmt"
)

// ErrInvariant marks an attempted submit while a pending/active bid is still
// recorded for the same key. The serialized queue makes this unreachable by
// construction; if it is ever observed the operation is dropped rather than
// risk a corrupt ledger.
var ErrInvariant = errors.New("pending or active bid already recorded for key")

// TransientFetchError wraps marketplace read failures. The poll loop is the
// retry mechanism; these never propagate beyond a log line.
type TransientFetchError struct {
	Marketplace string
	Collection  string
	Err         error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("fetch %s/%s: %v", e.Marketplace, e.Collection, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// ValidationError marks a malformed or out-of-range signal; the key is
// skipped for the current cycle only.
type ValidationError struct {
	Marketplace string
	Collection  string
	Reason      string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid signal %s/%s: %s", e.Marketplace, e.Collection, e.Reason)
}

// SubmissionError marks a failure in the format/sign/submit sequence. The
// ledger is left without an entry and the key re-evaluates on the next signal.
type SubmissionError struct {
	Marketplace string
	Collection  string
	Step        string
	Err         error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Step, e.Marketplace, e.Collection, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
