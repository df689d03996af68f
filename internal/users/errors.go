package users

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrPortalNotFound = errors.New("portal not found")
	ErrUsernameTaken  = errors.New("username already taken")
)
