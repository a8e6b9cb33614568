package domain

import (
	"errors"
	"testing"
	"time"
)

func TestMCPError(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		message   string
		details   string
		requestID string
	}{
		{
			name:      "invalid input",
			code:      ErrCodeInvalidInput,
			message:   "missing patient_id",
			details:   "patient_id is required",
			requestID: "req-123",
		},
		{
			name:      "no routing candidate",
			code:      ErrCodeNoCandidate,
			message:   "no eligible models",
			details:   "latency budget too tight",
			requestID: "req-456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewMCPError(tt.code, tt.message, tt.details, tt.requestID)

			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("expected message %s, got %s", tt.message, err.Message)
			}
			if err.Details != tt.details {
				t.Errorf("expected details %s, got %s", tt.details, err.Details)
			}
			if err.RequestID != tt.requestID {
				t.Errorf("expected requestID %s, got %s", tt.requestID, err.RequestID)
			}
			if time.Since(err.Timestamp) > time.Minute {
				t.Errorf("timestamp should be recent, got %v", err.Timestamp)
			}

			expected := tt.code + ": " + tt.message
			if err.Error() != expected {
				t.Errorf("expected error string %s, got %s", expected, err.Error())
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		message string
		value   interface{}
	}{
		{name: "string field", field: "adverse_event", message: "unrecognized value", value: "FOO"},
		{name: "numeric field", field: "hours_since_infusion", message: "must be finite", value: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidationError(tt.field, tt.message, tt.value)

			if err.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, err.Field)
			}
			if err.Message != tt.message {
				t.Errorf("expected message %s, got %s", tt.message, err.Message)
			}
			if err.Value != tt.value {
				t.Errorf("expected value %v, got %v", tt.value, err.Value)
			}

			expected := "validation error for field '" + tt.field + "': " + tt.message
			if err.Error() != expected {
				t.Errorf("expected error string %s, got %s", expected, err.Error())
			}
		})
	}
}

func TestErrorSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrUnknownNode,
		ErrUnknownModel,
		ErrNoRoutingCandidate,
		ErrCircuitOpen,
		ErrRateLimited,
		ErrTransportFailure,
		ErrEmptyEnsemble,
		ErrEngineNotInitialized,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			if errors.Is(a, b) {
				t.Errorf("sentinel %v should not match %v", a, b)
			}
		}
	}
}

func TestErrorWrapping(t *testing.T) {
	wrapped := errors.New("model gpt-safety-1: " + ErrCircuitOpen.Error())
	if errors.Is(wrapped, ErrCircuitOpen) {
		t.Fatal("plain errors.New should not satisfy errors.Is against a different sentinel instance")
	}
}
