package params

import "time"

const (
	ServerBodyLimit       = 1048576 // 1 MiB
	ServerIdleTimeout     = 30 * time.Second
	ServerReadTimeout     = 10 * time.Second
	ServerWriteTimeout    = 10 * time.Second
	HealthCheckServerAddr = ":3001" // health check server address

	DefaultAuthMethod           = "Password"       // login method used when the caller names none
	DefaultFailedAttemptsPeriod = 60 * time.Second // sliding window for failed login counting
	DefaultMaxFailedAttempts    = 10               // denied attempts tolerated per ip inside the window

	AuthTokenLength       = 16                    // random bytes per token value, hex encoded
	AuthTokenInsertRetry  = 3                     // attempts to insert a token on value collision
	TokenSecretCookieName = "auth-token-secret"   // cookie carrying the token secret
	TokenSecretCookieAge  = 1000 * 24 * time.Hour // secret cookie lifetime
	LogoutUsername        = "**logout"            // sentinel username, never audited

	TwoFactorCodeLength     = 6                // digits in an email code
	TwoFactorCodeExpiration = 10 * time.Minute // email code lifetime
	TwoFactorCodeKeyPrefix  = "2fa:code:"      // redis key prefix of email codes
	TwoFactorTOTPKeyPrefix  = "2fa:totp:"      // redis key prefix of totp replay windows
	TwoFactorTOTPWindowTTL  = 2 * time.Minute  // time to keep the last accepted totp window
	TwoFactorTOTPIssuer     = "kgate"          // issuer shown by authenticator apps
)

// Request headers understood by the HTTP adapter.
const (
	HeaderAuthorization        = "X-Kgate-Authorization"
	HeaderAuthorizationByToken = "X-Kgate-Authorization-By-Token"
	HeaderAuthorizationCode    = "X-Kgate-Authorization-Code"
	HeaderAuthorizationMethod  = "X-Kgate-Authorization-Method"
	HeaderCreateTokenSecret    = "X-Kgate-Authorization-Create-Token-Secret"
	HeaderPortal               = "X-Kgate-Portal"
	HeaderBasicAuthorization   = "Authorization"
)
