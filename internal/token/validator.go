package token

import (
	"errors"
	"fmt"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Validation failures callers must branch on.
var (
	ErrInvalidSignature = errors.New("subject token signature invalid")
	ErrTokenExpired     = errors.New("subject token expired")
	ErrResourceMismatch = errors.New("subject token resource mismatch")
	ErrMissingSubject   = errors.New("subject token missing sub claim")
)

// SubjectClaims is the typed payload of an inbound subject token. It is
// validated once here and never re-interpreted downstream.
type SubjectClaims struct {
	Email    string `json:"email"`
	Resource string `json:"resource"`
	jwt.RegisteredClaims
}

// Validator verifies and decodes subject tokens. Pure verification: no
// network calls.
type Validator struct {
	secret []byte
}

// NewValidator builds a validator over the shared HS256 secret.
func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// Verify checks signature and expiry, then requires the token's resource
// claim to equal expectedResource. Expiry is reported as ErrTokenExpired,
// distinct from signature failures; a resource mismatch is
// ErrResourceMismatch so the caller can map it to invalid_target.
func (v *Validator) Verify(rawToken, expectedResource string) (*SubjectClaims, error) {
	claims := &SubjectClaims{}
	parsed, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidSignature
	}

	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	if claims.Resource == "" || claims.Resource != expectedResource {
		return nil, fmt.Errorf("%w: token bound to %q, request declared %q",
			ErrResourceMismatch, claims.Resource, expectedResource)
	}

	return claims, nil
}
