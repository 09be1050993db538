package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(ErrCodeRoundNotFound, "round not found", http.StatusNotFound),
			want: "[STATE_2001] round not found",
		},
		{
			name: "error with underlying error",
			err:  Wrap(ErrCodeLedgerUnavailable, "ledger call failed", http.StatusServiceUnavailable, errors.New("underlying")),
			want: "[TRANSIENT_4001] ledger call failed: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(ErrCodeStoreUnavailable, "test", http.StatusServiceUnavailable, underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestServiceError_WithDetails(t *testing.T) {
	err := New(ErrCodeSchemaViolation, "test", http.StatusBadRequest)
	err.WithDetails("field", "username").WithDetails("reason", "too short")

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}

	if err.Details["field"] != "username" {
		t.Errorf("Details[field] = %v, want username", err.Details["field"])
	}

	if err.Details["reason"] != "too short" {
		t.Errorf("Details[reason] = %v, want too short", err.Details["reason"])
	}
}

func TestInvalidAddress(t *testing.T) {
	err := InvalidAddress("0xnotanaddress")

	if err.Code != ErrCodeInvalidAddress {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidAddress)
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}
	if err.Details["address"] != "0xnotanaddress" {
		t.Errorf("Details[address] = %v, want 0xnotanaddress", err.Details["address"])
	}
}

func TestInvalidCommitHash(t *testing.T) {
	err := InvalidCommitHash("not-hex")
	if err.Code != ErrCodeInvalidCommitHash {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidCommitHash)
	}
}

func TestInvalidJobID(t *testing.T) {
	err := InvalidJobID("abcxyz")
	if err.Code != ErrCodeInvalidJobID {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidJobID)
	}
}

func TestRoundNotFound(t *testing.T) {
	err := RoundNotFound("round-1")

	if err.Code != ErrCodeRoundNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeRoundNotFound)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusNotFound)
	}
	if err.Details["roundId"] != "round-1" {
		t.Errorf("Details[roundId] = %v, want round-1", err.Details["roundId"])
	}
}

func TestNotEnrolled(t *testing.T) {
	err := NotEnrolled("round-1", "agent-9")
	if err.Code != ErrCodeNotEnrolled {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNotEnrolled)
	}
	if err.Details["agentId"] != "agent-9" {
		t.Errorf("Details[agentId] = %v, want agent-9", err.Details["agentId"])
	}
}

func TestCommitClosed(t *testing.T) {
	err := CommitClosed("round-1")
	if err.Code != ErrCodeCommitClosed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeCommitClosed)
	}
}

func TestRevealClosed(t *testing.T) {
	err := RevealClosed("round-1")
	if err.Code != ErrCodeRevealClosed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeRevealClosed)
	}
}

func TestMissingCommit(t *testing.T) {
	err := MissingCommit("round-1", "agent-9")
	if err.Code != ErrCodeMissingCommit {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeMissingCommit)
	}
}

func TestCommitmentMismatch(t *testing.T) {
	err := CommitmentMismatch("round-1", "agent-9")
	if err.Code != ErrCodeCommitmentMismatch {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeCommitmentMismatch)
	}
}

func TestAlreadyClosed(t *testing.T) {
	err := AlreadyClosed("round-1")
	if err.Code != ErrCodeAlreadyClosed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeAlreadyClosed)
	}
}

func TestModerationRejected(t *testing.T) {
	err := ModerationRejected("banned phrase")

	if err.Code != ErrCodeModerationRejected {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeModerationRejected)
	}
	if err.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusUnprocessableEntity)
	}
}

func TestLedgerUnavailable(t *testing.T) {
	underlying := errors.New("rpc timeout")
	err := LedgerUnavailable(underlying)

	if err.Code != ErrCodeLedgerUnavailable {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeLedgerUnavailable)
	}
	if err.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusServiceUnavailable)
	}
	if !err.Retriable {
		t.Error("Retriable = false, want true")
	}
}

func TestStoreUnavailable(t *testing.T) {
	err := StoreUnavailable(errors.New("connection refused"))
	if err.Code != ErrCodeStoreUnavailable {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeStoreUnavailable)
	}
	if !err.Retriable {
		t.Error("Retriable = false, want true")
	}
}

func TestAPIUnavailable(t *testing.T) {
	err := APIUnavailable(errors.New("502"))
	if err.Code != ErrCodeAPIUnavailable {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeAPIUnavailable)
	}
	if err.HTTPStatus != http.StatusBadGateway {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadGateway)
	}
}

func TestStoreConflict(t *testing.T) {
	err := StoreConflict("round:1:agent:9")
	if err.Code != ErrCodeStoreConflict {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeStoreConflict)
	}
	if !err.Retriable {
		t.Error("Retriable = false, want true")
	}
}

func TestInfluenceValidationFailed(t *testing.T) {
	err := InfluenceValidationFailed(0.2, 0.05)

	if err.Code != ErrCodeInfluenceValidationFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInfluenceValidationFailed)
	}
	if err.Details["delta"] != 0.2 {
		t.Errorf("Details[delta] = %v, want 0.2", err.Details["delta"])
	}
}

func TestSignatureFailed(t *testing.T) {
	underlying := errors.New("private key not found")
	err := SignatureFailed(underlying)

	if err.Code != ErrCodeSignatureFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeSignatureFailed)
	}
	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
}

func TestNonceExhausted(t *testing.T) {
	err := NonceExhausted("0xabc")
	if err.Code != ErrCodeNonceExhausted {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNonceExhausted)
	}
	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusConflict)
	}
}

func TestIsServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "service error", err: New(ErrCodeStoreUnavailable, "test", http.StatusServiceUnavailable), want: true},
		{name: "standard error", err: errors.New("standard error"), want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServiceError(tt.err); got != tt.want {
				t.Errorf("IsServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetServiceError(t *testing.T) {
	serviceErr := New(ErrCodeRoundNotFound, "test", http.StatusNotFound)
	standardErr := errors.New("standard error")

	tests := []struct {
		name string
		err  error
		want *ServiceError
	}{
		{name: "service error", err: serviceErr, want: serviceErr},
		{name: "standard error", err: standardErr, want: nil},
		{name: "nil error", err: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetServiceError(tt.err)
			if got != tt.want {
				t.Errorf("GetServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "service error", err: New(ErrCodeRoundNotFound, "test", http.StatusNotFound), want: http.StatusNotFound},
		{name: "standard error", err: errors.New("standard error"), want: http.StatusInternalServerError},
		{name: "nil error", err: nil, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatus(tt.err); got != tt.want {
				t.Errorf("GetHTTPStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "retriable service error", err: LedgerUnavailable(errors.New("x")), want: true},
		{name: "non-retriable service error", err: RoundNotFound("round-1"), want: false},
		{name: "standard error", err: errors.New("plain"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetriable(tt.err); got != tt.want {
				t.Errorf("IsRetriable() = %v, want %v", got, tt.want)
			}
		})
	}
}
