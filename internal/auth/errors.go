package auth

import (
	"errors"

	"github.com/khanghh/kgate/internal/ratelimit"
)

var (
	ErrTooManyAttempts  = ratelimit.ErrTooManyAttempts
	ErrUnavailable      = errors.New("application is in maintenance mode")
	ErrMethodNotAllowed = errors.New("authentication method not allowed")
)
