// Package errors provides standardized error handling for plan generation and
// its web surface.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Input
	ErrCodeBriefEmpty   ErrorCode = "BRIEF_EMPTY"
	ErrCodeBriefInvalid ErrorCode = "BRIEF_INVALID"

	// Credential
	ErrCodeCredentialMissing ErrorCode = "CREDENTIAL_MISSING"
	ErrCodeCredentialInvalid ErrorCode = "CREDENTIAL_INVALID"

	// Upstream LLM
	ErrCodeLLMRateLimited ErrorCode = "LLM_RATE_LIMITED"
	ErrCodeLLMUnavailable ErrorCode = "LLM_UNAVAILABLE"
	ErrCodeLLMTimeout     ErrorCode = "LLM_TIMEOUT"

	// Response
	ErrCodePlanMalformed     ErrorCode = "PLAN_MALFORMED"
	ErrCodePlanSchemaInvalid ErrorCode = "PLAN_SCHEMA_INVALID"

	// Web / session
	ErrCodeGenerationInProgress ErrorCode = "GENERATION_IN_PROGRESS"
	ErrCodeRateLimited          ErrorCode = "RATE_LIMITED"
	ErrCodePlanNotFound         ErrorCode = "PLAN_NOT_FOUND"
	ErrCodeSessionStoreFailed   ErrorCode = "SESSION_STORE_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// HTTPStatus returns the status code the web layer responds with.
func (e *StandardError) HTTPStatus() int {
	return HTTPStatus(e.Code)
}

// UserMessage is the text shown in the page. Details are appended for
// validation failures where they tell the user what to fix.
func (e *StandardError) UserMessage() string {
	switch e.Code {
	case ErrCodeBriefInvalid, ErrCodePlanSchemaInvalid:
		if e.Details != "" {
			return fmt.Sprintf("%s: %s", e.Message, e.Details)
		}
	}
	return e.Message
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewBriefEmptyError creates a non-retryable validation error.
func NewBriefEmptyError() *StandardError {
	return newError(ErrCodeBriefEmpty, "Please enter a project brief or upload a file.", "", false, nil)
}

// NewBriefInvalidError creates a non-retryable validation error.
func NewBriefInvalidError(details string) *StandardError {
	return newError(ErrCodeBriefInvalid, "The project brief could not be used", details, false, nil)
}

// NewCredentialMissingError is returned before any request is made.
func NewCredentialMissingError(envVar string) *StandardError {
	return newError(ErrCodeCredentialMissing,
		fmt.Sprintf("Please configure your %s in the .env file.", envVar),
		fmt.Sprintf("%s not found in environment variables", envVar), false, nil)
}

// NewCredentialInvalidError wraps an upstream 401/403.
func NewCredentialInvalidError(err error) *StandardError {
	return newError(ErrCodeCredentialInvalid,
		"The language model provider rejected the configured API key.", errDetails(err), false, err)
}

// NewLLMRateLimitedError wraps an upstream 429.
func NewLLMRateLimitedError(err error) *StandardError {
	return newError(ErrCodeLLMRateLimited,
		"The language model provider is rate limiting requests. Please try again shortly.", errDetails(err), true, err)
}

// NewLLMUnavailableError wraps network errors and upstream 5xx.
func NewLLMUnavailableError(err error) *StandardError {
	return newError(ErrCodeLLMUnavailable,
		"Failed to generate plan: the language model service is unavailable.", errDetails(err), true, err)
}

// NewLLMTimeoutError is returned when the request deadline expires.
func NewLLMTimeoutError(timeout time.Duration) *StandardError {
	return newError(ErrCodeLLMTimeout,
		"Failed to generate plan: the language model did not respond in time.",
		fmt.Sprintf("timeout: %s", timeout), true, nil)
}

// NewPlanMalformedError is returned when no plan JSON can be decoded.
func NewPlanMalformedError(details string, err error) *StandardError {
	return newError(ErrCodePlanMalformed,
		"Invalid JSON response from AI.", joinDetails(details, err), true, err)
}

// NewPlanSchemaInvalidError is returned when the decoded plan violates the schema.
func NewPlanSchemaInvalidError(violations []string) *StandardError {
	return newError(ErrCodePlanSchemaInvalid,
		"The generated plan did not match the expected structure",
		strings.Join(violations, "; "), true, nil).
		WithMetadata("violations", violations)
}

// NewGenerationInProgressError rejects a concurrent submission in one session.
func NewGenerationInProgressError() *StandardError {
	return newError(ErrCodeGenerationInProgress,
		"A plan is already being generated for this session. Please wait for it to finish.", "", true, nil)
}

// NewRateLimitedError rejects a request over the local rate limit.
func NewRateLimitedError(client string) *StandardError {
	return newError(ErrCodeRateLimited,
		"Too many requests. Please wait a moment before generating another plan.",
		fmt.Sprintf("client: %s", client), true, nil)
}

// NewPlanNotFoundError is returned by downloads when the session holds no plan.
func NewPlanNotFoundError() *StandardError {
	return newError(ErrCodePlanNotFound, "No plan has been generated yet.", "", false, nil)
}

// NewSessionStoreFailedError wraps a session backend failure.
func NewSessionStoreFailedError(op string, err error) *StandardError {
	return newError(ErrCodeSessionStoreFailed,
		"Session storage is unavailable. Please try again.",
		fmt.Sprintf("op: %s, error: %s", op, errDetails(err)), true, err)
}

// NewInternalError wraps anything unexpected.
func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", errDetails(err), false, err)
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func joinDetails(details string, err error) string {
	if err == nil {
		return details
	}
	if details == "" {
		return err.Error()
	}
	return details + ": " + err.Error()
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// Is reports whether err carries a StandardError with the given code.
func Is(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return errors.As(err, &stdErr) && stdErr.Code == code
}

// HTTPStatus maps an error code to the response status.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeBriefEmpty, ErrCodeBriefInvalid:
		return http.StatusBadRequest
	case ErrCodePlanNotFound:
		return http.StatusNotFound
	case ErrCodeGenerationInProgress:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeCredentialInvalid, ErrCodeLLMUnavailable, ErrCodePlanMalformed, ErrCodePlanSchemaInvalid:
		return http.StatusBadGateway
	case ErrCodeLLMRateLimited:
		return http.StatusServiceUnavailable
	case ErrCodeLLMTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeLLMRateLimited,
		ErrCodeLLMUnavailable,
		ErrCodeLLMTimeout,
		ErrCodePlanMalformed,
		ErrCodePlanSchemaInvalid,
		ErrCodeGenerationInProgress,
		ErrCodeRateLimited,
		ErrCodeSessionStoreFailed:
		return true
	default:
		return false
	}
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "BRIEF"):
		return "VALIDATION"
	case strings.HasPrefix(codeStr, "CREDENTIAL"):
		return "AUTH"
	case strings.HasPrefix(codeStr, "LLM"):
		return "UPSTREAM"
	case strings.HasPrefix(codeStr, "PLAN_NOT_FOUND"):
		return "SESSION"
	case strings.HasPrefix(codeStr, "PLAN"):
		return "RESPONSE"
	case strings.Contains(codeStr, "SESSION") || strings.Contains(codeStr, "GENERATION"):
		return "SESSION"
	case strings.Contains(codeStr, "RATE"):
		return "THROTTLE"
	default:
		return "OTHER"
	}
}
