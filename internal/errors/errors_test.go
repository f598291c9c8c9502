package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestOperationError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "with op and target",
			err:     Wrap(ErrPoll, "poll processing", "token-1", errors.New("connection reset")),
			wantMsg: "polling failed (poll processing token-1): connection reset",
		},
		{
			name:    "without target",
			err:     Wrap(ErrBomSubmission, "submit bom", "", NewStatusError(http.StatusBadRequest, "Bad Request", "")),
			wantMsg: "BOM upload failed (submit bom): 400 - Bad Request",
		},
		{
			name:    "without op",
			err:     &OperationError{Kind: ErrProjectUpdate, Cause: errors.New("boom")},
			wantMsg: "project update failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", got, tt.wantMsg)
			}
		})
	}
}

func TestWrap_NilCause(t *testing.T) {
	if err := Wrap(ErrPoll, "poll", "t", nil); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestOperationError_MatchesKindAndCause(t *testing.T) {
	cause := NewStatusError(http.StatusNotFound, "Not Found", "")
	err := fmt.Errorf("resolve: %w", Wrap(ErrProjectNotFound, "lookup project", "app/1.0", cause))

	if !errors.Is(err, ErrProjectNotFound) {
		t.Error("expected ErrProjectNotFound to match")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected the 404 cause to match ErrNotFound")
	}
	if errors.Is(err, ErrPoll) {
		t.Error("did not expect ErrPoll to match")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatal("expected errors.As to find the StatusError")
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", statusErr.StatusCode)
	}
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		name             string
		err              *StatusError
		wantMsg          string
		wantNotFound     bool
		wantUnauthorized bool
	}{
		{"not found", &StatusError{StatusCode: 404, Status: "Not Found"}, "404 - Not Found", true, false},
		{"unauthorized", &StatusError{StatusCode: 401, Status: "Unauthorized"}, "401 - Unauthorized", false, true},
		{"forbidden", &StatusError{StatusCode: 403}, "403 - Forbidden", false, true},
		{"server error", &StatusError{StatusCode: 500}, "500 - Internal Server Error", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", got, tt.wantMsg)
			}
			if got := errors.Is(tt.err, ErrNotFound); got != tt.wantNotFound {
				t.Errorf("Is(ErrNotFound) = %v, want %v", got, tt.wantNotFound)
			}
			if got := errors.Is(tt.err, ErrUnauthorized); got != tt.wantUnauthorized {
				t.Errorf("Is(ErrUnauthorized) = %v, want %v", got, tt.wantUnauthorized)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "explicit transient error", err: NewTransient(errors.New("timeout")), want: true},
		{name: "wrapped transient error", err: Wrap(ErrPoll, "poll", "", NewTransient(errors.New("eof"))), want: true},
		{name: "server error", err: NewStatusError(502, "Bad Gateway", ""), want: true},
		{name: "rate limited", err: NewStatusError(429, "Too Many Requests", ""), want: true},
		{name: "client error", err: NewStatusError(400, "Bad Request", ""), want: false},
		{name: "wrapped client error", err: Wrap(ErrBomSubmission, "submit", "", NewStatusError(404, "", "")), want: false},
		{name: "unknown error defaults to non-transient", err: errors.New("unknown error"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigurationError(t *testing.T) {
	err := NewConfigurationf("missing %s", "bomFilePath")
	if err.Error() != "missing bomFilePath" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Error("expected ErrConfiguration to match")
	}
	if !errors.Is(fmt.Errorf("load: %w", err), ErrConfiguration) {
		t.Error("expected wrapped configuration error to match")
	}
}

func TestThresholdViolation(t *testing.T) {
	v := &ThresholdViolation{Dimension: "critical", Count: 3, Threshold: 1}
	if got, want := v.Error(), "critical count (3) exceeds threshold (1)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(v, ErrThresholdViolation) {
		t.Error("expected ErrThresholdViolation to match")
	}

	all := Violations{v, {Dimension: "high", Count: 5, Threshold: 0}}
	if got, want := all.Error(), "critical count (3) exceeds threshold (1); high count (5) exceeds threshold (0)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(all, ErrThresholdViolation) {
		t.Error("expected aggregated violations to match")
	}
	if errors.Is(Violations{}, ErrThresholdViolation) {
		t.Error("empty violations must not match")
	}
}

func TestPolicyViolation(t *testing.T) {
	p := &PolicyViolation{Expression: "critical == 0"}
	if got, want := p.Error(), `threshold policy "critical == 0" evaluated to false`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	p.Message = "no criticals allowed"
	if p.Error() != "no criticals allowed" {
		t.Errorf("Error() = %q", p.Error())
	}
	if !errors.Is(p, ErrThresholdViolation) {
		t.Error("expected ErrThresholdViolation to match")
	}
}
