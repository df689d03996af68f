package login

import (
	"context"
	"errors"
	"log/slog"

	"github.com/khanghh/kgate/internal/users"
	"golang.org/x/crypto/bcrypt"
)

const MethodPassword = "Password"

// Password checks a username and bcrypt password against the local user table.
type Password struct {
	users     UserFinder
	dummyHash []byte
	logger    *slog.Logger
}

func (m *Password) Login(ctx context.Context, creds Credentials) (*Result, error) {
	if creds.Token != nil {
		return loginByToken(ctx, m.users, creds)
	}
	if creds.Username == "" || creds.Password == "" {
		return Fail(reasonNoUser), nil
	}

	user, err := m.users.GetUserByUsername(ctx, creds.Username)
	if errors.Is(err, users.ErrUserNotFound) {
		// keep response time close to a real password check
		bcrypt.CompareHashAndPassword(m.dummyHash, []byte(creds.Password))
		return Fail(reasonNoUser), nil
	} else if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(creds.Password)); err != nil {
		m.logger.Debug("Password mismatch", "username", creds.Username)
		return Fail(reasonBadPassword), nil
	}
	return Success(user), nil
}

func NewPassword(finder UserFinder, logger *slog.Logger) *Password {
	if logger == nil {
		logger = slog.Default()
	}
	dummyHash, _ := bcrypt.GenerateFromPassword([]byte("kgate-dummy-password"), bcrypt.DefaultCost)
	return &Password{
		users:     finder,
		dummyHash: dummyHash,
		logger:    logger,
	}
}
