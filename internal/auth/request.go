package auth

import (
	"time"

	"github.com/khanghh/kgate/model"
	"github.com/khanghh/kgate/params"
)

// Request gives read-only access to the inbound login request.
type Request interface {
	Header(name string) string
	Cookie(name string) string
	RemoteAddr() string
	RequestTime() time.Time
	Method() string
	// URL returns scheme://host/path, without the query.
	URL() string
}

// LoginInput is what the caller supplied to authenticate. Password may hold
// a session token instead of a password.
type LoginInput struct {
	Username string
	Password string
	Method   string
	Portal   *model.Portal
}

type Status int

const (
	StatusDenied Status = iota
	StatusAuthenticated
	StatusSecondStepRequired
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusSecondStepRequired:
		return "secondStepRequired"
	default:
		return "denied"
	}
}

// Identity is the authenticated user plus request scoped session data.
type Identity struct {
	User            *model.User
	PortalID        string
	IPAddress       string
	Token           string
	AuthTokenID     string
	AuthLogRecordID string
}

// CookieDirective asks the caller to set or clear the token secret cookie.
// The cookie always has path=/, HttpOnly and SameSite=Lax.
type CookieDirective struct {
	Name    string
	Value   string
	Expires time.Time
}

func (d *CookieDirective) IsClear() bool {
	return d.Value == ""
}

func setSecretCookie(secret string, now time.Time) *CookieDirective {
	return &CookieDirective{
		Name:    params.TokenSecretCookieName,
		Value:   secret,
		Expires: now.Add(params.TokenSecretCookieAge),
	}
}

func clearSecretCookie() *CookieDirective {
	return &CookieDirective{
		Name:    params.TokenSecretCookieName,
		Expires: time.Unix(0, 0),
	}
}

type Result struct {
	Status       Status
	Identity     *Identity
	View         string
	LoginData    map[string]any
	SecretCookie *CookieDirective
}

func denied() *Result {
	return &Result{Status: StatusDenied}
}
