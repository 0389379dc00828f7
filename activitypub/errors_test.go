package activitypub

import (
	"errors"
	"fmt"
	"testing"
)

func TestFedErrorUnwrap(t *testing.T) {
	base := errors.New("connection reset")
	fe := NewFedError(KindTransient, base)

	if !errors.Is(fe, base) {
		t.Error("expected FedError to unwrap to the underlying error via errors.Is")
	}
	if fe.Error() == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestKindOfDefaultsToTransient(t *testing.T) {
	plain := fmt.Errorf("some unclassified failure")
	if got := KindOf(plain); got != KindTransient {
		t.Errorf("expected unclassified error to default to transient, got %s", got)
	}
}

func TestKindOfExtractsWrappedKind(t *testing.T) {
	fe := NewFedError(KindPoison, errors.New("repeatedly malformed"))
	wrapped := fmt.Errorf("handler failed: %w", fe)

	if got := KindOf(wrapped); got != KindPoison {
		t.Errorf("expected wrapped FedError kind to be extracted, got %s", got)
	}
}

func TestRetryDecisionHelpers(t *testing.T) {
	tests := []struct {
		kind           ErrorKind
		retry, dlq, ack bool
	}{
		{KindTransient, true, false, false},
		{KindRateLimited, true, false, false},
		{KindPoison, false, true, false},
		{KindMalformed, false, false, true},
		{KindPolicyBlock, false, false, true},
		{KindNotFound, false, false, true},
		{KindUnauthorized, false, false, false},
		{KindFatal, false, false, false},
	}

	for _, tt := range tests {
		if got := ShouldRetry(tt.kind); got != tt.retry {
			t.Errorf("ShouldRetry(%s) = %v, want %v", tt.kind, got, tt.retry)
		}
		if got := ShouldDeadLetter(tt.kind); got != tt.dlq {
			t.Errorf("ShouldDeadLetter(%s) = %v, want %v", tt.kind, got, tt.dlq)
		}
		if got := ShouldAckWithoutRetry(tt.kind); got != tt.ack {
			t.Errorf("ShouldAckWithoutRetry(%s) = %v, want %v", tt.kind, got, tt.ack)
		}
	}
}
