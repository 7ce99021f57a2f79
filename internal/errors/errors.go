package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of authentication error.
type ErrorCode string

const (
	// ErrCodeInvalidCredentials indicates the backend rejected the email/password pair.
	ErrCodeInvalidCredentials ErrorCode = "invalid_credentials"
	// ErrCodeSecondFactorRequired indicates login cannot complete without a one-time code.
	ErrCodeSecondFactorRequired ErrorCode = "second_factor_required"
	// ErrCodeInvalidCode indicates a one-time code was rejected.
	ErrCodeInvalidCode ErrorCode = "invalid_code"
	// ErrCodeRateLimited indicates too many attempts within the enforcement window.
	ErrCodeRateLimited ErrorCode = "rate_limited"
	// ErrCodeRefreshInvalid indicates the refresh token was rejected; the session cannot recover.
	ErrCodeRefreshInvalid ErrorCode = "refresh_invalid"
	// ErrCodeNetworkTimeout indicates a backend call timed out; retryable.
	ErrCodeNetworkTimeout ErrorCode = "network_timeout"
	// ErrCodeStoreCorrupt indicates persisted credentials could not be parsed.
	ErrCodeStoreCorrupt ErrorCode = "store_corrupt"
	// ErrCodeFederatedExchange indicates the federated identity token exchange failed.
	ErrCodeFederatedExchange ErrorCode = "federated_exchange"
	// ErrCodeRegistration indicates the backend rejected a registration request.
	ErrCodeRegistration ErrorCode = "registration"
	// ErrCodeResetRequest indicates a password reset request failed at the transport level.
	ErrCodeResetRequest ErrorCode = "reset_request"
	// ErrCodeUnauthorized indicates the backend rejected the access token on an
	// authenticated call. Hydration uses it to decide when to attempt a refresh.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeInternal indicates an unexpected internal failure.
	ErrCodeInternal ErrorCode = "internal"
)

// AuthError represents a structured authentication error with a code, message,
// and optional cause. It supports error wrapping and unwrapping for use with
// errors.Is and errors.As.
type AuthError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Reason carries a backend-provided detail (optional, for registration errors)
	Reason string
	// UserID identifies the pending user for second-factor challenges (optional)
	UserID string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// InvalidCredentials creates a new InvalidCredentials error.
func InvalidCredentials(message string) *AuthError {
	return &AuthError{
		Code:    ErrCodeInvalidCredentials,
		Message: message,
	}
}

// SecondFactorRequired creates the challenge signal carrying the pending user id.
func SecondFactorRequired(userID string) *AuthError {
	return &AuthError{
		Code:    ErrCodeSecondFactorRequired,
		Message: "second factor required",
		UserID:  userID,
	}
}

// InvalidCode creates a new InvalidCode error.
func InvalidCode(message string) *AuthError {
	return &AuthError{
		Code:    ErrCodeInvalidCode,
		Message: message,
	}
}

// RateLimited creates a new RateLimited error.
func RateLimited(message string) *AuthError {
	return &AuthError{
		Code:    ErrCodeRateLimited,
		Message: message,
	}
}

// RefreshInvalid creates a new RefreshInvalid error.
func RefreshInvalid(message string) *AuthError {
	return &AuthError{
		Code:    ErrCodeRefreshInvalid,
		Message: message,
	}
}

// NetworkTimeout wraps a transport timeout.
func NetworkTimeout(cause error) *AuthError {
	return &AuthError{
		Code:    ErrCodeNetworkTimeout,
		Message: "backend request timed out",
		Cause:   cause,
	}
}

// StoreCorrupt wraps a credential store parse failure.
func StoreCorrupt(cause error) *AuthError {
	return &AuthError{
		Code:    ErrCodeStoreCorrupt,
		Message: "stored credentials are unreadable",
		Cause:   cause,
	}
}

// FederatedExchange creates a new FederatedExchange error.
func FederatedExchange(message string, cause error) *AuthError {
	return &AuthError{
		Code:    ErrCodeFederatedExchange,
		Message: message,
		Cause:   cause,
	}
}

// Registration creates a new Registration error carrying the backend reason.
func Registration(reason string) *AuthError {
	return &AuthError{
		Code:    ErrCodeRegistration,
		Message: "registration rejected",
		Reason:  reason,
	}
}

// ResetRequest wraps a password reset transport failure.
func ResetRequest(cause error) *AuthError {
	return &AuthError{
		Code:    ErrCodeResetRequest,
		Message: "password reset request failed",
		Cause:   cause,
	}
}

// Unauthorized creates a new Unauthorized error.
func Unauthorized(message string) *AuthError {
	if message == "" {
		message = "access token rejected"
	}
	return &AuthError{
		Code:    ErrCodeUnauthorized,
		Message: message,
	}
}

// Internal creates a new Internal error.
func Internal(message string) *AuthError {
	return &AuthError{
		Code:    ErrCodeInternal,
		Message: message,
	}
}

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AuthError {
	return &AuthError{
		Code:    ErrCodeInternal,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an AuthError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AuthError {
	if err == nil {
		return nil
	}
	return &AuthError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AuthError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AuthError {
	if err == nil {
		return nil
	}
	return &AuthError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// CodeOf returns the error's code, or ErrCodeInternal for unclassified errors.
func CodeOf(err error) ErrorCode {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return ErrCodeInternal
}

// PendingUserID extracts the pending user id from a second-factor challenge error.
func PendingUserID(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Code == ErrCodeSecondFactorRequired {
		return authErr.UserID
	}
	return ""
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Code == code
}

// IsInvalidCredentials checks if an error is an InvalidCredentials error.
func IsInvalidCredentials(err error) bool {
	return isCode(err, ErrCodeInvalidCredentials)
}

// IsSecondFactorRequired checks if an error is the second-factor challenge signal.
func IsSecondFactorRequired(err error) bool {
	return isCode(err, ErrCodeSecondFactorRequired)
}

// IsInvalidCode checks if an error is an InvalidCode error.
func IsInvalidCode(err error) bool {
	return isCode(err, ErrCodeInvalidCode)
}

// IsRateLimited checks if an error is a RateLimited error.
func IsRateLimited(err error) bool {
	return isCode(err, ErrCodeRateLimited)
}

// IsRefreshInvalid checks if an error is a RefreshInvalid error.
func IsRefreshInvalid(err error) bool {
	return isCode(err, ErrCodeRefreshInvalid)
}

// IsNetworkTimeout checks if an error is a NetworkTimeout error.
func IsNetworkTimeout(err error) bool {
	return isCode(err, ErrCodeNetworkTimeout)
}

// IsStoreCorrupt checks if an error is a StoreCorrupt error.
func IsStoreCorrupt(err error) bool {
	return isCode(err, ErrCodeStoreCorrupt)
}

// IsFederatedExchange checks if an error is a FederatedExchange error.
func IsFederatedExchange(err error) bool {
	return isCode(err, ErrCodeFederatedExchange)
}

// IsRegistration checks if an error is a Registration error.
func IsRegistration(err error) bool {
	return isCode(err, ErrCodeRegistration)
}

// IsUnauthorized checks if an error is an Unauthorized error.
func IsUnauthorized(err error) bool {
	return isCode(err, ErrCodeUnauthorized)
}

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}
