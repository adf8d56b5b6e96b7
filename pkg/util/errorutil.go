package util

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// OAuth error codes surfaced by the token exchange endpoint (RFC 6749 §5.2
// plus the rate-limit extension code).
const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidClient        = "invalid_client"
	CodeInvalidGrant         = "invalid_grant"
	CodeInvalidTarget        = "invalid_target"
	CodeUnsupportedGrantType = "unsupported_grant_type"
	CodeRateLimitExceeded    = "rate_limit_exceeded"
	CodeServerError          = "server_error"
)

// OAuthError standardizes errors rendered on the OAuth-facing surface.
type OAuthError struct {
	Code        string
	Description string
	HTTPStatus  int
	// ResetAt is set for rate-limit denials so the transport layer can emit
	// Retry-After / X-RateLimit-Reset headers.
	ResetAt time.Time
	Err     error
}

func (e *OAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *OAuthError) Unwrap() error {
	return e.Err
}

// NewOAuthError constructs an OAuthError.
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{Code: code, Description: description, HTTPStatus: status}
}

func NewInvalidRequest(description string) error {
	return NewOAuthError(CodeInvalidRequest, description, http.StatusBadRequest)
}

func NewInvalidClient(description string) error {
	return NewOAuthError(CodeInvalidClient, description, http.StatusUnauthorized)
}

func NewInvalidGrant(description string) error {
	return NewOAuthError(CodeInvalidGrant, description, http.StatusUnauthorized)
}

func NewInvalidTarget(description string) error {
	return NewOAuthError(CodeInvalidTarget, description, http.StatusBadRequest)
}

func NewUnsupportedGrantType(got string) error {
	return NewOAuthError(CodeUnsupportedGrantType,
		fmt.Sprintf("unsupported grant_type %q", got), http.StatusBadRequest)
}

func NewRateLimitExceeded(resetAt time.Time) error {
	e := NewOAuthError(CodeRateLimitExceeded, "rate limit exceeded, retry later", http.StatusTooManyRequests)
	e.ResetAt = resetAt
	return e
}

func NewServerError(err error) error {
	return &OAuthError{
		Code:        CodeServerError,
		Description: "internal server error",
		HTTPStatus:  http.StatusInternalServerError,
		Err:         err,
	}
}

// ToOAuthError converts generic errors to OAuthError, defaulting to
// server_error for anything untyped.
func ToOAuthError(err error) *OAuthError {
	if err == nil {
		return nil
	}
	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return &OAuthError{
		Code:        CodeServerError,
		Description: "internal server error",
		HTTPStatus:  http.StatusInternalServerError,
		Err:         err,
	}
}
