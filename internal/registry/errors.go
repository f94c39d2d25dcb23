package registry

import "fmt"

// Reason is a stable, machine-checkable rejection code for a share submit.
type Reason string

const (
	ReasonBadExtranonce2Size Reason = "bad_extranonce2_size"
	ReasonJobNotFound        Reason = "job_not_found"
	ReasonBadNTimeSize       Reason = "bad_ntime_size"
	ReasonNTimeOutOfRange    Reason = "ntime_out_of_range"
	ReasonBadNonceSize       Reason = "bad_nonce_size"
	ReasonDuplicateShare     Reason = "duplicate_share"
	ReasonAboveTarget        Reason = "above_target"
)

// SubmitError is the Go rendering of the original's SubmitException: every
// rejection in the submit_share validation sequence surfaces as one of
// these, never a panic.
type SubmitError struct {
	Reason  Reason
	Message string
}

func (e *SubmitError) Error() string { return e.Message }

func newSubmitError(reason Reason, format string, args ...interface{}) *SubmitError {
	return &SubmitError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}
