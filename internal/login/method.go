package login

import (
	"context"
	"errors"

	"github.com/khanghh/kgate/internal/common"
	"github.com/khanghh/kgate/internal/users"
	"github.com/khanghh/kgate/model"
	"github.com/khanghh/kgate/params"
)

type Status int

const (
	StatusFail Status = iota
	StatusSuccess
	StatusSecondStepRequired
)

// Result is the outcome of one login method invocation.
type Result struct {
	Status     Status
	User       *model.User
	View       string
	LoginData  map[string]any
	FailReason string
}

func (r *Result) IsSuccess() bool {
	return r != nil && r.Status == StatusSuccess && r.User != nil
}

func Success(user *model.User) *Result {
	return &Result{Status: StatusSuccess, User: user}
}

func SecondStepRequired(user *model.User, view string, loginData map[string]any) *Result {
	return &Result{Status: StatusSecondStepRequired, User: user, View: view, LoginData: loginData}
}

func Fail(reason string) *Result {
	return &Result{Status: StatusFail, FailReason: reason}
}

// Credentials carries what the caller supplied. Token is set when the
// password field already resolved to a valid session token.
type Credentials struct {
	Username  string
	Password  string
	Token     *model.AuthToken
	IPAddress string
}

// Method verifies credentials and yields the user they belong to.
type Method interface {
	Login(ctx context.Context, creds Credentials) (*Result, error)
}

// UserFinder is the part of users.UserService the methods need.
type UserFinder interface {
	GetUserByID(ctx context.Context, userID uint) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

const (
	reasonNoUser      = "user not found"
	reasonBadPassword = "wrong password"
	reasonStaleToken  = "token does not match user"
)

// loginByToken authenticates the owner of an already validated token. The
// token is rejected once the password changed after it was issued.
func loginByToken(ctx context.Context, finder UserFinder, creds Credentials) (*Result, error) {
	user, err := finder.GetUserByID(ctx, creds.Token.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		return Fail(reasonNoUser), nil
	} else if err != nil {
		return nil, err
	}
	if !common.SecureCompare(creds.Token.Hash, user.Password) {
		return Fail(reasonStaleToken), nil
	}
	if creds.Username != "" && creds.Username != params.LogoutUsername && creds.Username != user.Username {
		return Fail(reasonStaleToken), nil
	}
	return Success(user), nil
}
