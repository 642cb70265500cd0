package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(ParseError, "unexpected indent at line 12", cause)

	if err.Code != ParseError {
		t.Errorf("Code = %v, want %v", err.Code, ParseError)
	}
	if err.Message != "unexpected indent at line 12" {
		t.Errorf("Message = %q, want %q", err.Message, "unexpected indent at line 12")
	}
	if len(err.SuggestedFixes) != 1 {
		t.Errorf("len(SuggestedFixes) = %d, want 1", len(err.SuggestedFixes))
	}
}

func TestObfuscateError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		path      string
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      IOFailure,
			message:   "failed to write rewritten source",
			cause:     errors.New("permission denied"),
			wantParts: []string{"IO_FAILURE", "failed to write rewritten source", "permission denied"},
		},
		{
			name:      "without cause",
			code:      TokenExhausted,
			message:   "no tokens remain in alphabet",
			cause:     nil,
			wantParts: []string{"TOKEN_EXHAUSTED", "no tokens remain in alphabet"},
		},
		{
			name:      "with path",
			code:      ParseError,
			message:   "invalid syntax",
			cause:     nil,
			path:      "pkg/util.py",
			wantParts: []string{"PARSE_ERROR", "invalid syntax", "pkg/util.py"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, tt.cause)
			if tt.path != "" {
				err = err.WithPath(tt.path)
			}
			got := err.Error()

			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestObfuscateError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(InternalError, "something went wrong", cause)

	unwrapped := err.Unwrap()
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	errNoCause := New(RewriteValidationFailed, "rewritten output did not re-parse", nil)
	if errNoCause.Unwrap() != nil {
		t.Errorf("Unwrap() on error without cause should return nil")
	}
}

func TestObfuscateError_WithDetails(t *testing.T) {
	err := New(AmbiguousOwnership, "could not resolve ownership of 'helper'", nil)
	details := map[string]int{"line": 42, "column": 8}

	result := err.WithDetails(details)

	if result != err {
		t.Error("WithDetails should return the same error for chaining")
	}
	if err.Details == nil {
		t.Error("Details should be set")
	}
}

func TestObfuscateError_WithPath(t *testing.T) {
	err := New(ParseError, "invalid syntax", nil)
	result := err.WithPath("src/app.py")

	if result != err {
		t.Error("WithPath should return the same error for chaining")
	}
	if err.Path != "src/app.py" {
		t.Errorf("Path = %q, want %q", err.Path, "src/app.py")
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ParseError, true},
		{TokenExhausted, true},
		{RewriteValidationFailed, true},
		{IOFailure, true},
		{InternalError, true},
		{AmbiguousOwnership, false},
		{DynamicNameUncertain, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := IsFatal(tt.code); got != tt.want {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	tests := []struct {
		code    ErrorCode
		wantNil bool
	}{
		{ParseError, false},
		{TokenExhausted, false},
		{RewriteValidationFailed, false},
		{AmbiguousOwnership, true},
		{DynamicNameUncertain, true},
		{InternalError, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			fixes := GetSuggestedFixes(tt.code)

			if tt.wantNil && fixes != nil {
				t.Errorf("GetSuggestedFixes(%v) = %v, want nil", tt.code, fixes)
			}
			if !tt.wantNil && len(fixes) == 0 {
				t.Errorf("GetSuggestedFixes(%v) should return at least one fix", tt.code)
			}
		})
	}
}

func TestErrorCodesUnique(t *testing.T) {
	codes := []ErrorCode{
		ParseError,
		TokenExhausted,
		RewriteValidationFailed,
		IOFailure,
		AmbiguousOwnership,
		DynamicNameUncertain,
		InternalError,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %v", code)
		}
		seen[code] = true

		if string(code) == "" {
			t.Error("Error code should not be empty")
		}
	}
}

func TestFixActionTypes(t *testing.T) {
	types := []FixActionType{RunCommand, OpenDocs}

	for _, ft := range types {
		if string(ft) == "" {
			t.Error("FixActionType should not be empty")
		}
	}
}

func TestFixActionStructure(t *testing.T) {
	action := FixAction{
		Type:        OpenDocs,
		Description: "Fix the syntax error reported at the given position and re-run the transform",
		URL:         "https://example.com",
	}

	if action.Type != OpenDocs {
		t.Errorf("Type = %v, want %v", action.Type, OpenDocs)
	}
	if action.Description == "" {
		t.Error("Description should not be empty")
	}
}

func TestErrorActionsMap(t *testing.T) {
	expectedCodes := []ErrorCode{
		ParseError,
		TokenExhausted,
		RewriteValidationFailed,
	}

	for _, code := range expectedCodes {
		if _, ok := errorActions[code]; !ok {
			t.Errorf("errorActions missing entry for %v", code)
		}
	}

	for code, fixes := range errorActions {
		if len(fixes) == 0 {
			t.Errorf("errorActions[%v] has no fix actions", code)
		}
		for i, fix := range fixes {
			if fix.Type == "" {
				t.Errorf("errorActions[%v][%d].Type is empty", code, i)
			}
		}
	}
}
