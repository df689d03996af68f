package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/khanghh/kgate/internal/common"
	"github.com/khanghh/kgate/internal/config"
	"github.com/khanghh/kgate/model"
	"github.com/khanghh/kgate/params"
	"gorm.io/gorm"
)

// IssueOptions describes the session a successful login asked for.
type IssueOptions struct {
	PortalID   string
	IPAddress  string
	WithSecret bool
	Now        time.Time
}

// TokenStore manages persistent session tokens.
type TokenStore struct {
	repo   TokenRepository
	config config.Reader
	logger *slog.Logger
}

// FindByValue looks a token up by its value. Activity and secret are not checked.
func (s *TokenStore) FindByValue(ctx context.Context, value string) (*model.AuthToken, error) {
	if value == "" {
		return nil, ErrTokenNotFound
	}
	token, err := s.repo.FindByToken(ctx, value)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	} else if err != nil {
		return nil, err
	}
	return token, nil
}

// Validate returns the token only when it is active, its secret (if any)
// matches secretCookie, and it belongs to portalID. An empty portalID stands
// for the default context: portal tokens are rejected there unless any
// access is allowed, in which case the token is returned and its PortalID
// becomes the portal of the request.
//
// Lookup failures are logged and reported as ErrTokenNotFound.
func (s *TokenStore) Validate(ctx context.Context, value string, secretCookie string, portalID string) (*model.AuthToken, error) {
	token, err := s.FindByValue(ctx, value)
	if err != nil {
		if !errors.Is(err, ErrTokenNotFound) {
			s.logger.Error("Failed to lookup auth token", "error", err)
		}
		return nil, ErrTokenNotFound
	}
	if !token.IsActive {
		return nil, ErrTokenNotFound
	}
	if token.Secret != "" && !common.SecureCompare(secretCookie, token.Secret) {
		return nil, ErrTokenNotFound
	}

	if portalID != "" {
		if token.PortalID != portalID {
			s.logger.Info("AUTH: trying to login to portal with a token not related to portal", "tokenId", token.ID, "portalId", portalID)
			return nil, ErrTokenScopeMismatch
		}
		return token, nil
	}
	if token.PortalID != "" && !config.GetBool(s.config, config.KeyAllowAnyAccess, false) {
		s.logger.Info("AUTH: trying to login to crm with a token related to portal", "tokenId", token.ID)
		return nil, ErrTokenScopeMismatch
	}
	return token, nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func (s *TokenStore) insert(ctx context.Context, token *model.AuthToken) error {
	if !config.GetBool(s.config, config.KeyTokenPreventConcurrent, false) {
		return s.repo.Create(ctx, token)
	}
	return s.repo.Transaction(ctx, func(repo TokenRepository) error {
		if err := repo.LockUser(ctx, token.UserID); err != nil {
			return err
		}
		if _, err := repo.DeactivateUserTokens(ctx, token.UserID); err != nil {
			return err
		}
		return repo.Create(ctx, token)
	})
}

// Issue creates an active token for user. The token remembers the current
// password hash so rotating the password invalidates it. When concurrent
// sessions are prevented, every other active token of the user is
// deactivated in the same transaction.
func (s *TokenStore) Issue(ctx context.Context, user *model.User, opts IssueOptions) (*model.AuthToken, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	token := &model.AuthToken{
		Hash:       user.Password,
		IPAddress:  opts.IPAddress,
		UserID:     user.ID,
		PortalID:   opts.PortalID,
		IsActive:   true,
		LastAccess: opts.Now,
	}
	if opts.WithSecret && !config.GetBool(s.config, config.KeyTokenSecretDisabled, false) {
		secret, err := common.GenerateToken(params.AuthTokenLength)
		if err != nil {
			return nil, err
		}
		token.Secret = secret
	}

	var err error
	for attempt := 0; attempt < params.AuthTokenInsertRetry; attempt++ {
		token.Token, err = common.GenerateToken(params.AuthTokenLength)
		if err != nil {
			return nil, err
		}
		if err = s.insert(ctx, token); !isDuplicateKey(err) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("issue auth token: %w", err)
	}
	return token, nil
}

// Touch records the time the token was last used.
func (s *TokenStore) Touch(ctx context.Context, token *model.AuthToken, now time.Time) error {
	if err := s.repo.UpdateLastAccess(ctx, token.ID, now); err != nil {
		return err
	}
	token.LastAccess = now
	return nil
}

// Revoke deactivates the token with the given value. clearSecret reports
// whether the caller presented the token secret and should drop its cookie.
func (s *TokenStore) Revoke(ctx context.Context, value string, secretCookie string) (found bool, clearSecret bool, err error) {
	token, err := s.FindByValue(ctx, value)
	if errors.Is(err, ErrTokenNotFound) {
		return false, false, nil
	} else if err != nil {
		return false, false, err
	}
	if err := s.repo.Deactivate(ctx, token.ID); err != nil {
		return true, false, err
	}
	token.IsActive = false
	clearSecret = token.Secret != "" && common.SecureCompare(secretCookie, token.Secret)
	return true, clearSecret, nil
}

func NewTokenStore(repo TokenRepository, cfg config.Reader, logger *slog.Logger) *TokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.MapReader{}
	}
	return &TokenStore{
		repo:   repo,
		config: cfg,
		logger: logger,
	}
}
