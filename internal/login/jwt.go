package login

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/khanghh/kgate/internal/users"
)

const MethodJWT = "Jwt"

// JWT accepts an HS256 token, signed with the master key, in the password
// field. The subject names the user.
type JWT struct {
	users     UserFinder
	secretKey []byte
	leeway    time.Duration
}

func (m *JWT) parse(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.leeway),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *JWT) Login(ctx context.Context, creds Credentials) (*Result, error) {
	if creds.Token != nil {
		return loginByToken(ctx, m.users, creds)
	}
	if creds.Password == "" {
		return Fail("missing token"), nil
	}

	claims, err := m.parse(creds.Password)
	if err != nil {
		return Fail("invalid token"), nil
	}
	if creds.Username != "" && creds.Username != claims.Subject {
		return Fail("subject mismatch"), nil
	}

	user, err := m.users.GetUserByUsername(ctx, claims.Subject)
	if errors.Is(err, users.ErrUserNotFound) {
		return Fail(reasonNoUser), nil
	} else if err != nil {
		return nil, err
	}
	return Success(user), nil
}

// Sign issues a token for username, valid for ttl. Used by tooling that
// mints tokens for service accounts.
func (m *JWT) Sign(username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
}

func NewJWT(finder UserFinder, masterKey string) *JWT {
	return &JWT{
		users:     finder,
		secretKey: []byte(masterKey),
		leeway:    30 * time.Second,
	}
}
