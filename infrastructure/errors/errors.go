// Package errors provides unified error handling for the Arena,
// Culture-Graph Indexer, and Operator Telemetry pipelines.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Input / validation errors (1xxx) — malformed request, never retried.
	ErrCodeInvalidAddress    ErrorCode = "VAL_1001"
	ErrCodeInvalidCommitHash ErrorCode = "VAL_1002"
	ErrCodeInvalidJobID      ErrorCode = "VAL_1003"
	ErrCodeSchemaViolation   ErrorCode = "VAL_1004"

	// Round/agent state errors (2xxx) — the request is well-formed but the
	// round or agent is not in a state that permits it.
	ErrCodeRoundNotFound      ErrorCode = "STATE_2001"
	ErrCodeNotEnrolled        ErrorCode = "STATE_2002"
	ErrCodeCommitClosed       ErrorCode = "STATE_2003"
	ErrCodeRevealClosed       ErrorCode = "STATE_2004"
	ErrCodeMissingCommit      ErrorCode = "STATE_2005"
	ErrCodeCommitmentMismatch ErrorCode = "STATE_2006"
	ErrCodeAlreadyClosed      ErrorCode = "STATE_2007"

	// Policy errors (3xxx).
	ErrCodeModerationRejected ErrorCode = "POLICY_3001"

	// Transient transport errors (4xxx) — safe to retry with backoff.
	ErrCodeLedgerUnavailable ErrorCode = "TRANSIENT_4001"
	ErrCodeStoreUnavailable  ErrorCode = "TRANSIENT_4002"
	ErrCodeAPIUnavailable    ErrorCode = "TRANSIENT_4003"
	ErrCodeStoreConflict     ErrorCode = "TRANSIENT_4004"

	// Consistency errors (5xxx) — a cross-check against an external source
	// of truth failed past tolerance.
	ErrCodeInfluenceValidationFailed ErrorCode = "CONSISTENCY_5001"

	// Security errors (6xxx).
	ErrCodeSignatureFailed ErrorCode = "SECURITY_6001"
	ErrCodeNonceExhausted  ErrorCode = "SECURITY_6002"
)

// ServiceError represents a structured error with code, message, and HTTP status
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Retriable  bool                   `json:"retriable"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Retry marks e as safe to retry and returns e.
func (e *ServiceError) Retry() *ServiceError {
	e.Retriable = true
	return e
}

// Wrap wraps an existing error with a ServiceError
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Input / validation errors.

func InvalidAddress(address string) *ServiceError {
	return New(ErrCodeInvalidAddress, "invalid address", http.StatusBadRequest).
		WithDetails("address", address)
}

func InvalidCommitHash(hash string) *ServiceError {
	return New(ErrCodeInvalidCommitHash, "commit hash must match /^0x[0-9a-f]+$/i", http.StatusBadRequest).
		WithDetails("hash", hash)
}

func InvalidJobID(raw string) *ServiceError {
	return New(ErrCodeInvalidJobID, "job id is not a valid hex or decimal integer", http.StatusBadRequest).
		WithDetails("jobId", raw)
}

func SchemaViolation(reason string) *ServiceError {
	return New(ErrCodeSchemaViolation, "schema violation", http.StatusBadRequest).
		WithDetails("reason", reason)
}

// Round/agent state errors.

func RoundNotFound(roundID string) *ServiceError {
	return New(ErrCodeRoundNotFound, "round not found", http.StatusNotFound).
		WithDetails("roundId", roundID)
}

func NotEnrolled(roundID, agentID string) *ServiceError {
	return New(ErrCodeNotEnrolled, "agent is not enrolled for this round/role", http.StatusConflict).
		WithDetails("roundId", roundID).
		WithDetails("agentId", agentID)
}

func CommitClosed(roundID string) *ServiceError {
	return New(ErrCodeCommitClosed, "commit window has closed", http.StatusConflict).
		WithDetails("roundId", roundID)
}

func RevealClosed(roundID string) *ServiceError {
	return New(ErrCodeRevealClosed, "reveal window has closed", http.StatusConflict).
		WithDetails("roundId", roundID)
}

func MissingCommit(roundID, agentID string) *ServiceError {
	return New(ErrCodeMissingCommit, "no commit on file for this agent", http.StatusConflict).
		WithDetails("roundId", roundID).
		WithDetails("agentId", agentID)
}

func CommitmentMismatch(roundID, agentID string) *ServiceError {
	return New(ErrCodeCommitmentMismatch, "revealed payload does not hash to the stored commit", http.StatusConflict).
		WithDetails("roundId", roundID).
		WithDetails("agentId", agentID)
}

func AlreadyClosed(roundID string) *ServiceError {
	return New(ErrCodeAlreadyClosed, "round is already closed", http.StatusConflict).
		WithDetails("roundId", roundID)
}

// Policy errors.

func ModerationRejected(reason string) *ServiceError {
	return New(ErrCodeModerationRejected, "reveal payload was flagged by moderation", http.StatusUnprocessableEntity).
		WithDetails("reason", reason)
}

// Transient transport errors — constructed already marked retriable.

func LedgerUnavailable(err error) *ServiceError {
	return Wrap(ErrCodeLedgerUnavailable, "ledger call failed", http.StatusServiceUnavailable, err).Retry()
}

func StoreUnavailable(err error) *ServiceError {
	return Wrap(ErrCodeStoreUnavailable, "store call failed", http.StatusServiceUnavailable, err).Retry()
}

func APIUnavailable(err error) *ServiceError {
	return Wrap(ErrCodeAPIUnavailable, "external api call failed", http.StatusBadGateway, err).Retry()
}

func StoreConflict(key string) *ServiceError {
	return New(ErrCodeStoreConflict, "unique key collision", http.StatusConflict).
		WithDetails("key", key).Retry()
}

// Consistency errors.

func InfluenceValidationFailed(delta, tolerance float64) *ServiceError {
	return New(ErrCodeInfluenceValidationFailed, "reference pagerank diverged beyond tolerance", http.StatusConflict).
		WithDetails("delta", delta).
		WithDetails("tolerance", tolerance)
}

// Security errors.

func SignatureFailed(err error) *ServiceError {
	return Wrap(ErrCodeSignatureFailed, "signing failed", http.StatusInternalServerError, err)
}

func NonceExhausted(address string) *ServiceError {
	return New(ErrCodeNonceExhausted, "no nonce could be reserved", http.StatusConflict).
		WithDetails("address", address)
}

// Helper functions

// IsServiceError checks if an error is a ServiceError
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsRetriable reports whether err (if a ServiceError) is safe to retry.
func IsRetriable(err error) bool {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Retriable
	}
	return false
}
