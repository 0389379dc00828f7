package activitypub

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a federation-core failure by how the pipeline
// should respond to it (ack/retry/DLQ/alert), per the error kinds
// enumerated for the inbox/queue propagation policy.
type ErrorKind string

const (
	KindMalformed    ErrorKind = "malformed"     // reject, 400
	KindUnauthorized ErrorKind = "unauthorized"  // reject, 401/403
	KindNotFound     ErrorKind = "not_found"     // tombstone, 410
	KindRateLimited  ErrorKind = "rate_limited"  // retry
	KindTransient    ErrorKind = "transient"     // retry with backoff
	KindPoison       ErrorKind = "poison"        // to DLQ at once, without retries
	KindPolicyBlock  ErrorKind = "policy_blocked" // drop + audit
	KindFatal        ErrorKind = "fatal"         // operator alert, halt worker
)

// FedError wraps an underlying error with the kind that determines how
// the caller should dispose of it. The teacher's codebase has no
// precedent for typed domain errors (everywhere else wraps with bare
// fmt.Errorf), so this is the one place a small custom error type is
// introduced rather than reusing the bare idiom.
type FedError struct {
	Kind ErrorKind
	Err  error
}

func (e *FedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FedError) Unwrap() error {
	return e.Err
}

func NewFedError(kind ErrorKind, err error) *FedError {
	return &FedError{Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a
// *FedError, defaulting to KindTransient so an unclassified error gets
// retried rather than silently dropped or DLQ'd.
func KindOf(err error) ErrorKind {
	var fe *FedError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}

// ShouldRetry reports whether the queue consumer should reschedule the
// message rather than ack or DLQ it outright.
func ShouldRetry(kind ErrorKind) bool {
	return kind == KindTransient || kind == KindRateLimited
}

// ShouldDeadLetter reports whether the message belongs in the DLQ
// rather than being retried further.
func ShouldDeadLetter(kind ErrorKind) bool {
	return kind == KindPoison
}

// ShouldAckWithoutRetry reports whether the message should simply be
// acknowledged (dropped from the active stream) without ever being
// retried or DLQ'd.
func ShouldAckWithoutRetry(kind ErrorKind) bool {
	return kind == KindMalformed || kind == KindPolicyBlock || kind == KindNotFound
}
