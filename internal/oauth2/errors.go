package oauth2

import "errors"

var (
	ErrProviderNotFound    = errors.New("provider not registered")
	ErrStateMismatch       = errors.New("state mismatch")
	ErrMissingCode         = errors.New("no authorization code received")
	ErrAuthorizationDenied = errors.New("authorization denied by user")
)
