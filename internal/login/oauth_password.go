package login

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/khanghh/kgate/internal/users"
	"golang.org/x/oauth2"
)

const MethodOAuthPassword = "OAuthPassword"

// OAuthPassword verifies the password against an external identity provider
// using the resource owner password grant. The user must also exist locally.
type OAuthPassword struct {
	users      UserFinder
	config     *oauth2.Config
	httpClient *http.Client
	logger     *slog.Logger
}

func (m *OAuthPassword) Login(ctx context.Context, creds Credentials) (*Result, error) {
	if creds.Token != nil {
		return loginByToken(ctx, m.users, creds)
	}
	if creds.Username == "" || creds.Password == "" {
		return Fail(reasonNoUser), nil
	}

	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}
	if _, err := m.config.PasswordCredentialsToken(ctx, creds.Username, creds.Password); err != nil {
		var retrieveErr *oauth2.RetrieveError
		if !errors.As(err, &retrieveErr) {
			m.logger.Error("Identity provider unreachable", "error", err)
		}
		return Fail(reasonBadPassword), nil
	}

	user, err := m.users.GetUserByUsername(ctx, creds.Username)
	if errors.Is(err, users.ErrUserNotFound) {
		m.logger.Warn("AUTH: external user has no local account", "username", creds.Username)
		return Fail(reasonNoUser), nil
	} else if err != nil {
		return nil, err
	}
	return Success(user), nil
}

type OAuthPasswordOptions struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	HTTPClient   *http.Client
}

func NewOAuthPassword(finder UserFinder, opts OAuthPasswordOptions, logger *slog.Logger) (*OAuthPassword, error) {
	if opts.TokenURL == "" {
		return nil, ErrOAuthNotConfigured
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OAuthPassword{
		users: finder,
		config: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: opts.TokenURL},
			Scopes:       opts.Scopes,
		},
		httpClient: opts.HTTPClient,
		logger:     logger,
	}, nil
}
