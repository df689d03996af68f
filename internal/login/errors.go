package login

import "errors"

var (
	ErrMethodNotFound     = errors.New("login method not found")
	ErrMethodRegistered   = errors.New("login method already registered")
	ErrOAuthNotConfigured = errors.New("oauth password provider not configured")
)
