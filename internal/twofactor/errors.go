package twofactor

import (
	"errors"
	"fmt"
)

var (
	ErrMethodNotFound   = errors.New("two-factor method not found")
	ErrTOTPVerifyFailed = errors.New("TOTP verification failed")

	// ErrFactorUnavailable is matched by errors of methods the user cannot
	// complete, such as a factor that was never enrolled.
	ErrFactorUnavailable = errors.New("two-factor method unavailable")
	ErrNoEmailAddress    = fmt.Errorf("%w: user has no email address", ErrFactorUnavailable)
	ErrTOTPNotEnrolled   = fmt.Errorf("%w: TOTP not enrolled", ErrFactorUnavailable)
)
