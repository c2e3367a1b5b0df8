package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodes(t *testing.T) {
	codes := []ErrorCode{
		CodeUnknown,
		CodeValidation,
		CodeConfiguration,
		CodeTimeout,
		CodeCanceled,
		CodeNotFound,
		CodeRateLimited,
		CodeMissingTargets,
		CodeInvalidTargets,
		CodeToolNotInstalled,
		CodeToolError,
		CodeProcessError,
		CodeNoStructuredOutput,
		CodeMalformedOutput,
		CodeStorage,
		CodeFileNotFound,
		CodeFileWrite,
		CodeStoreConnect,
		CodeStoreQuery,
		CodeStoreTimedOut,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		if string(code) == "" {
			t.Errorf("Error code %v should not be empty", code)
		}
		if seen[code] {
			t.Errorf("Error code %s is declared twice", code)
		}
		seen[code] = true
	}
}

func TestScanError(t *testing.T) {
	t.Run("basic error creation", func(t *testing.T) {
		err := NewScanError(CodeToolError, "nmap failed")
		if err.Code != CodeToolError {
			t.Errorf("Expected code %s, got %s", CodeToolError, err.Code)
		}
		if err.Message != "nmap failed" {
			t.Errorf("Expected message 'nmap failed', got '%s'", err.Message)
		}
		if err.Context == nil {
			t.Error("Context should be initialized")
		}
	})

	t.Run("error with target", func(t *testing.T) {
		err := ErrInvalidTargets("!!!")
		expected := "[INVALID_TARGETS] No valid targets found (target: !!!)"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("error without target", func(t *testing.T) {
		err := ErrMissingTargets()
		expected := "[MISSING_TARGETS] No targets provided"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("wrapped error", func(t *testing.T) {
		cause := fmt.Errorf("exec: \"nmap\": executable file not found in $PATH")
		err := ErrToolNotInstalled("nmap", cause)
		if !errors.Is(err, cause) {
			t.Error("Expected wrapped cause to be reachable with errors.Is")
		}
		if err.Context["binary"] != "nmap" {
			t.Errorf("Expected binary context 'nmap', got %v", err.Context["binary"])
		}
	})

	t.Run("exit code", func(t *testing.T) {
		err := NewScanError(CodeToolError, "Failed to resolve \"nope\"").WithExitCode(1)
		if err.ExitCode != 1 {
			t.Errorf("Expected exit code 1, got %d", err.ExitCode)
		}
	})

	t.Run("malformed output keeps parser message", func(t *testing.T) {
		err := ErrMalformedOutput(fmt.Errorf("XML syntax error on line 1: unexpected EOF"))
		if err.Message != "XML syntax error on line 1: unexpected EOF" {
			t.Errorf("Unexpected message %q", err.Message)
		}
	})
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, CodeUnknown},
		{"plain error", fmt.Errorf("boom"), CodeUnknown},
		{"scan error", ErrMissingTargets(), CodeMissingTargets},
		{"wrapped scan error", fmt.Errorf("run: %w", ErrInvalidTargets("x")), CodeInvalidTargets},
		{"store error", WrapStoreError(CodeStoreQuery, "list", fmt.Errorf("db closed")), CodeStoreQuery},
		{"config error", ErrConfigInvalid("scanning.output_dir", ""), CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewScanError(CodeProcessError, "signal: killed"))
	if !IsCode(err, CodeProcessError) {
		t.Error("Expected IsCode to see through wrapping")
	}
	if IsCode(err, CodeToolError) {
		t.Error("Expected IsCode to reject a different code")
	}
	if IsCode(nil, CodeUnknown) {
		t.Error("nil error should never match a code")
	}
}

func TestIsInputError(t *testing.T) {
	if !IsInputError(ErrMissingTargets()) {
		t.Error("missing targets is an input error")
	}
	if !IsInputError(ErrInvalidTargets("")) {
		t.Error("invalid targets is an input error")
	}
	if IsInputError(ErrToolNotInstalled("nmap", nil)) {
		t.Error("tool not installed is an environment error")
	}
}

func TestStoreError(t *testing.T) {
	cause := fmt.Errorf("database is locked")
	err := WrapStoreError(CodeStoreQuery, "add", cause)

	expected := "[STORE_QUERY] History store operation failed (operation: add)"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("Expected cause to be unwrapped")
	}
}
