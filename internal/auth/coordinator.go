package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/khanghh/kgate/internal/audit"
	"github.com/khanghh/kgate/internal/config"
	"github.com/khanghh/kgate/internal/login"
	"github.com/khanghh/kgate/internal/tokens"
	"github.com/khanghh/kgate/internal/twofactor"
	"github.com/khanghh/kgate/model"
	"github.com/khanghh/kgate/params"
)

type RateLimiter interface {
	CheckAllowed(ctx context.Context, ipAddress string, now time.Time) error
}

type TokenStore interface {
	Validate(ctx context.Context, value string, secretCookie string, portalID string) (*model.AuthToken, error)
	Issue(ctx context.Context, user *model.User, opts tokens.IssueOptions) (*model.AuthToken, error)
	Touch(ctx context.Context, token *model.AuthToken, now time.Time) error
	Revoke(ctx context.Context, value string, secretCookie string) (found bool, clearSecret bool, err error)
}

type AuditLog interface {
	Begin(ctx context.Context, attempt audit.Attempt, user *model.User) (*model.AuthLogRecord, error)
	Deny(ctx context.Context, record *model.AuthLogRecord, reason string) error
	AttachToken(record *model.AuthLogRecord, authTokenID string)
	Commit(ctx context.Context, record *model.AuthLogRecord) error
	LatestForToken(ctx context.Context, authTokenID string) (*model.AuthLogRecord, error)
}

// UserDirectory is the part of users.UserService the coordinator reads.
type UserDirectory interface {
	GetPortal(ctx context.Context, portalID string) (*model.Portal, error)
	IsPortalMember(ctx context.Context, portalID string, userID uint) (bool, error)
	LoadTeams(ctx context.Context, user *model.User) error
	GetTwoFactorConfig(ctx context.Context, userID uint) (*model.UserData, error)
}

type LoginMethods interface {
	Get(name string) (login.Method, error)
	IsAllowed(name string) bool
}

type TwoFactorMethods interface {
	Get(name string) (twofactor.Method, error)
}

type Options struct {
	Config           config.Reader
	RateLimiter      RateLimiter
	TokenStore       TokenStore
	AuditLog         AuditLog
	Users            UserDirectory
	LoginMethods     LoginMethods
	TwoFactorMethods TwoFactorMethods
	Logger           *slog.Logger
}

// Coordinator decides whether a login attempt establishes a session. It
// keeps no state between calls.
type Coordinator struct {
	config     config.Reader
	limiter    RateLimiter
	tokens     TokenStore
	audit      AuditLog
	users      UserDirectory
	logins     LoginMethods
	twoFactors TwoFactorMethods
	logger     *slog.Logger
}

// attempt holds the state of one Login call.
type attempt struct {
	req       Request
	input     LoginInput
	now       time.Time
	ipAddress string
	method    string
	portal    *model.Portal
	token     *model.AuthToken
	record    *model.AuthLogRecord
}

func (a *attempt) portalID() string {
	if a.portal == nil {
		return ""
	}
	return a.portal.ID
}

// Login runs one authentication attempt. Security denials come back as a
// Result with StatusDenied and a nil error, the reason is kept in the auth
// log only. Errors are ErrTooManyAttempts, ErrUnavailable,
// ErrMethodNotAllowed or internal failures.
func (c *Coordinator) Login(ctx context.Context, req Request, input LoginInput) (*Result, error) {
	at := &attempt{
		req:       req,
		input:     input,
		now:       req.RequestTime(),
		ipAddress: req.RemoteAddr(),
		method:    input.Method,
		portal:    input.Portal,
	}
	if at.now.IsZero() {
		at.now = time.Now()
	}

	byTokenOnly := false
	if at.method != "" {
		if !c.logins.IsAllowed(at.method) {
			c.logger.Warn("AUTH: trying to use not allowed authentication method", "method", at.method)
			return nil, ErrMethodNotAllowed
		}
	} else {
		byTokenOnly = req.Header(params.HeaderAuthorizationByToken) == "true"
	}

	if !byTokenOnly {
		if err := c.limiter.CheckAllowed(ctx, at.ipAddress, at.now); err != nil {
			return nil, err
		}
	}

	// An explicitly named method owns the password field, no token lookup.
	if at.method == "" {
		if !c.resolveToken(ctx, at) {
			return denied(), nil
		}
	}

	if byTokenOnly && at.token == nil {
		if input.Username != "" {
			c.logger.Info("AUTH: trying to login by token but token is not found", "username", input.Username)
		}
		return denied(), nil
	}

	if at.method == "" {
		at.method = config.GetString(c.config, config.KeyAuthMethod, params.DefaultAuthMethod)
	}
	method, err := c.logins.Get(at.method)
	if err != nil {
		return nil, fmt.Errorf("login method %q: %w", at.method, err)
	}

	loginResult, err := method.Login(ctx, login.Credentials{
		Username:  input.Username,
		Password:  input.Password,
		Token:     at.token,
		IPAddress: at.ipAddress,
	})
	if err != nil {
		return nil, err
	}
	var user *model.User
	if loginResult != nil && loginResult.Status != login.StatusFail {
		user = loginResult.User
	}

	if at.token == nil && input.Username != params.LogoutUsername {
		at.record, err = c.audit.Begin(ctx, audit.Attempt{
			Username:             input.Username,
			PortalID:             at.portalID(),
			IPAddress:            at.ipAddress,
			RequestTime:          at.now,
			RequestMethod:        req.Method(),
			RequestURL:           req.URL(),
			AuthenticationMethod: at.method,
		}, user)
		if err != nil {
			return nil, fmt.Errorf("save auth log record: %w", err)
		}
	}

	if user == nil {
		c.logger.Info("AUTH: wrong credentials", "username", input.Username, "ip", at.ipAddress, "method", at.method)
		return denied(), nil
	}

	if !user.IsAdmin && config.GetBool(c.config, config.KeyMaintenanceMode, false) {
		return nil, ErrUnavailable
	}

	if reason, err := c.checkUser(ctx, at, user); err != nil {
		return nil, err
	} else if reason != "" {
		c.deny(ctx, at, reason)
		return denied(), nil
	}

	identity := &Identity{User: user, IPAddress: at.ipAddress}
	if at.portal != nil {
		identity.PortalID = at.portal.ID
	} else if err := c.users.LoadTeams(ctx, user); err != nil {
		return nil, err
	}

	result := &Result{Status: StatusAuthenticated, Identity: identity}
	if loginResult.Status == login.StatusSecondStepRequired {
		result.Status = StatusSecondStepRequired
		result.View = loginResult.View
		result.LoginData = loginResult.LoginData
	} else if at.token == nil && config.GetBool(c.config, config.KeyTwoFactorEnabled, false) {
		result, err = c.processTwoFactor(ctx, at, result)
		if err != nil {
			return nil, err
		}
		if result.Status == StatusDenied {
			return result, nil
		}
	}

	if result.Status == StatusAuthenticated && req.Header(params.HeaderAuthorization) != "" {
		if err := c.attachToken(ctx, at, result); err != nil {
			return nil, err
		}
	}

	if at.record != nil {
		if err := c.audit.Commit(ctx, at.record); err != nil {
			return nil, fmt.Errorf("save auth log record: %w", err)
		}
		identity.AuthLogRecordID = at.record.ID
	} else if at.token != nil {
		latest, err := c.audit.LatestForToken(ctx, at.token.ID)
		if err != nil {
			c.logger.Error("Failed to lookup auth log record", "tokenId", at.token.ID, "error", err)
		} else if latest != nil {
			identity.AuthLogRecordID = latest.ID
		}
	}

	c.logger.Debug("AUTH: login", "username", user.Username, "ip", at.ipAddress, "status", result.Status.String())
	return result, nil
}

// resolveToken tries the password field as a session token. It returns
// false when the token is bound to another portal scope and the attempt must
// stop. A token that does not validate leaves the attempt unauthenticated.
func (c *Coordinator) resolveToken(ctx context.Context, at *attempt) bool {
	secret := at.req.Cookie(params.TokenSecretCookieName)
	token, err := c.tokens.Validate(ctx, at.input.Password, secret, at.portalID())
	if errors.Is(err, tokens.ErrTokenScopeMismatch) {
		return false
	} else if err != nil {
		return true
	}

	if at.portal == nil && token.PortalID != "" {
		portal, err := c.users.GetPortal(ctx, token.PortalID)
		if err != nil {
			c.logger.Info("AUTH: portal of token not found", "tokenId", token.ID, "portalId", token.PortalID, "error", err)
			return false
		}
		at.portal = portal
	}
	at.token = token
	return true
}

// checkUser returns the denial reason of the first failing policy, or "".
func (c *Coordinator) checkUser(ctx context.Context, at *attempt, user *model.User) (string, error) {
	if !user.IsActive {
		c.logger.Info("AUTH: trying to login as user which is not active", "username", user.Username)
		return audit.DenialInactiveUser, nil
	}
	if !user.IsAdmin && at.portal == nil && user.IsPortalUser {
		c.logger.Info("AUTH: trying to login to crm as a portal user", "username", user.Username)
		return audit.DenialIsPortalUser, nil
	}
	if at.portal == nil {
		return "", nil
	}
	if !user.IsPortalUser {
		c.logger.Info("AUTH: trying to login to portal as user which is not portal user", "username", user.Username)
		return audit.DenialIsNotPortalUser, nil
	}
	isMember, err := c.users.IsPortalMember(ctx, at.portal.ID, user.ID)
	if err != nil {
		return "", err
	}
	if !isMember {
		c.logger.Info("AUTH: trying to login to portal as user which does not belong to portal", "username", user.Username, "portalId", at.portal.ID)
		return audit.DenialUserIsNotInPortal, nil
	}
	return "", nil
}

func (c *Coordinator) userTwoFactorMethod(ctx context.Context, user *model.User) (string, error) {
	userData, err := c.users.GetTwoFactorConfig(ctx, user.ID)
	if err != nil || userData == nil {
		return "", err
	}
	if !userData.TwoFactorEnabled || userData.TwoFactorMethod == "" {
		return "", nil
	}
	allowed := config.GetStringSlice(c.config, config.KeyTwoFactorMethods, nil)
	if !slices.Contains(allowed, userData.TwoFactorMethod) {
		return "", nil
	}
	return userData.TwoFactorMethod, nil
}

// processTwoFactor verifies the supplied code, or starts the second step
// when there is none.
func (c *Coordinator) processTwoFactor(ctx context.Context, at *attempt, result *Result) (*Result, error) {
	user := result.Identity.User
	methodName, err := c.userTwoFactorMethod(ctx, user)
	if err != nil || methodName == "" {
		return result, err
	}
	method, err := c.twoFactors.Get(methodName)
	if err != nil {
		return nil, fmt.Errorf("two-factor method %q: %w", methodName, err)
	}

	code := at.req.Header(params.HeaderAuthorizationCode)
	if code == "" {
		loginData, err := method.Challenge(ctx, user)
		if err != nil {
			c.deny(ctx, at, audit.DenialSecondFactorUnavailable)
			if errors.Is(err, twofactor.ErrFactorUnavailable) {
				c.logger.Info("AUTH: second factor cannot be started", "username", user.Username, "method", methodName, "error", err)
				return denied(), nil
			}
			return nil, fmt.Errorf("two-factor challenge: %w", err)
		}
		result.Status = StatusSecondStepRequired
		result.View = methodName
		result.LoginData = loginData
		return result, nil
	}

	verified, err := method.Verify(ctx, user, code)
	if err != nil {
		c.deny(ctx, at, audit.DenialSecondFactorFailed)
		return nil, fmt.Errorf("two-factor verify: %w", err)
	}
	if !verified {
		c.logger.Info("AUTH: second factor not verified", "username", user.Username, "method", methodName)
		c.deny(ctx, at, audit.DenialSecondFactorFailed)
		return denied(), nil
	}
	return result, nil
}

// deny stores the attempt's record as denied. Failures are only logged, the
// attempt is rejected either way.
func (c *Coordinator) deny(ctx context.Context, at *attempt, reason string) {
	if err := c.audit.Deny(ctx, at.record, reason); err != nil {
		c.logger.Error("Failed to save auth log record", "error", err)
	}
}

// attachToken issues a session token unless the attempt came with one, and
// binds it to the identity and the auth log record.
func (c *Coordinator) attachToken(ctx context.Context, at *attempt, result *Result) error {
	if at.token == nil {
		wantSecret := at.req.Header(params.HeaderCreateTokenSecret) == "true"
		token, err := c.tokens.Issue(ctx, result.Identity.User, tokens.IssueOptions{
			PortalID:   at.portalID(),
			IPAddress:  at.ipAddress,
			WithSecret: wantSecret,
			Now:        at.now,
		})
		if err != nil {
			return err
		}
		if token.Secret != "" {
			result.SecretCookie = setSecretCookie(token.Secret, at.now)
		}
		at.token = token
	}

	if err := c.tokens.Touch(ctx, at.token, at.now); err != nil {
		return err
	}
	result.Identity.Token = at.token.Token
	result.Identity.AuthTokenID = at.token.ID
	c.audit.AttachToken(at.record, at.token.ID)
	return nil
}

// DestroyToken deactivates a session token on logout. The returned directive
// is non nil when the caller presented the token secret and should clear its
// cookie.
func (c *Coordinator) DestroyToken(ctx context.Context, req Request, tokenValue string) (bool, *CookieDirective, error) {
	found, clearSecret, err := c.tokens.Revoke(ctx, tokenValue, req.Cookie(params.TokenSecretCookieName))
	if err != nil || !found {
		return found, nil, err
	}
	if clearSecret {
		return true, clearSecretCookie(), nil
	}
	return true, nil, nil
}

func NewCoordinator(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.MapReader{}
	}
	return &Coordinator{
		config:     cfg,
		limiter:    opts.RateLimiter,
		tokens:     opts.TokenStore,
		audit:      opts.AuditLog,
		users:      opts.Users,
		logins:     opts.LoginMethods,
		twoFactors: opts.TwoFactorMethods,
		logger:     logger,
	}
}
