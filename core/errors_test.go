package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"circuit open", ErrCircuitOpen, false},
		{"unknown tool", ErrUnknownTool, false},
		{"invalid shape", ErrToolShapeInvalid, false},
		{"invalid configuration", ErrInvalidConfiguration, false},
		{"missing configuration", ErrMissingConfiguration, false},
		{"timeout", ErrToolTimeout, true},
		{"wrapped timeout", fmt.Errorf("optimizer: %w", ErrToolTimeout), true},
		{"runtime failure", errors.New("runtime:boom"), true},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestOrchestrationErrorUnwrap(t *testing.T) {
	err := NewOrchestrationError("execute", "tool", ErrToolTimeout)
	if !errors.Is(err, ErrToolTimeout) {
		t.Error("wrapped sentinel not reachable through Unwrap")
	}
	if IsRetryable(err) != true {
		t.Error("retryability lost through wrapping")
	}
}
