package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestScanError(t *testing.T) {
	t.Run("error with target", func(t *testing.T) {
		err := NewScanErrorWithTarget(CodeTargetInvalid, "bad spec", "10.0.0.1-x")
		expected := "[TARGET_INVALID] bad spec (target: 10.0.0.1-x)"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("error without target", func(t *testing.T) {
		err := NewScanError(CodeValidation, "validation failed")
		expected := "[VALIDATION] validation failed"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("wrapped error", func(t *testing.T) {
		cause := fmt.Errorf("parse failure")
		err := WrapScanError(CodeTargetInvalid, "invalid spec", cause)
		if err.Unwrap() != cause {
			t.Error("Unwrap should return the cause")
		}
		if !errors.Is(err, cause) {
			t.Error("errors.Is should find the cause")
		}
		expected := "[TARGET_INVALID] invalid spec: parse failure"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})
}

func TestConfigError(t *testing.T) {
	t.Run("field error", func(t *testing.T) {
		err := NewConfigFieldError(CodeValidation, "must be positive", "scanning.workers", -1)
		expected := "[VALIDATION] must be positive (field: scanning.workers)"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
		if err.Value != -1 {
			t.Errorf("Expected value -1, got %v", err.Value)
		}
	})

	t.Run("wrapped error", func(t *testing.T) {
		cause := fmt.Errorf("yaml: line 3")
		err := WrapConfigError(CodeConfiguration, "failed to parse config", cause)
		if !errors.Is(err, cause) {
			t.Error("errors.Is should find the cause")
		}
	})
}

func TestUtilityFunctions(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		code  ErrorCode
		fatal bool
	}{
		{"scan error", NewScanError(CodeCanceled, "stopped"), CodeCanceled, false},
		{"config error", NewConfigError(CodeConfiguration, "bad"), CodeConfiguration, true},
		{"wrapped config error", fmt.Errorf("outer: %w", ErrMissingProber("sctp")), CodeConfiguration, true},
		{"invalid target", ErrInvalidTarget("x", nil), CodeTargetInvalid, true},
		{"plain error", fmt.Errorf("plain"), CodeUnknown, false},
		{"nil error", nil, CodeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.code {
				t.Errorf("GetCode() = %s, want %s", got, tt.code)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
			if tt.err != nil && !IsCode(tt.err, tt.code) {
				t.Errorf("IsCode(%s) should be true", tt.code)
			}
		})
	}

	if IsCode(nil, CodeUnknown) {
		t.Error("IsCode(nil) should be false")
	}
}

func TestCommonErrorCreationFunctions(t *testing.T) {
	t.Run("missing prober names the protocol", func(t *testing.T) {
		err := ErrMissingProber("sctp")
		expected := `[CONFIGURATION] no prober registered for protocol "sctp" (field: services)`
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("not found", func(t *testing.T) {
		err := ErrNotFound("abc")
		if err.Code != CodeNotFound || err.Target != "abc" {
			t.Errorf("unexpected error: %+v", err)
		}
	})

	t.Run("profile not found", func(t *testing.T) {
		err := ErrProfileNotFound("lab")
		if !IsCode(err, CodeNotFound) || err.Target != "lab" {
			t.Errorf("unexpected error: %+v", err)
		}
	})

	t.Run("config invalid", func(t *testing.T) {
		err := ErrConfigInvalid("logging.level", "loud")
		if err.Field != "logging.level" || err.Value != "loud" {
			t.Errorf("unexpected error: %+v", err)
		}
	})
}
