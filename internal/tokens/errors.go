package tokens

import "errors"

var (
	ErrTokenNotFound      = errors.New("auth token not found")
	ErrTokenScopeMismatch = errors.New("auth token bound to another portal")
)
