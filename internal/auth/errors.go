package auth

import "errors"

var (
	// ErrTokenInvalid is returned when a token fails signature, expiry or
	// claim checks.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrMissingSecret is returned when signing without a secret.
	ErrMissingSecret = errors.New("auth: signing secret is required")

	// ErrMissingSubject is returned when signing without a subject.
	ErrMissingSubject = errors.New("auth: subject is required")
)
