package config

import (
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Keys read by the authentication engine at request time.
const (
	KeyAuthMethod             = "auth.method"
	KeyFailedAttemptsPeriod   = "auth.failedAttemptsPeriod"
	KeyMaxFailedAttempts      = "auth.maxFailedAttempts"
	KeyMaintenanceMode        = "maintenanceMode"
	KeyTwoFactorEnabled       = "auth.twoFactor.enabled"
	KeyTwoFactorMethods       = "auth.twoFactor.methods"
	KeyTokenPreventConcurrent = "auth.token.preventConcurrent"
	KeyTokenSecretDisabled    = "auth.token.secretDisabled"
	KeyAllowAnyAccess         = "auth.allowAnyAccess"
)

// Reader looks up a single setting, returning def when the key is not set.
type Reader interface {
	Get(key string, def any) any
}

type viperReader struct {
	v *viper.Viper
}

func (r *viperReader) Get(key string, def any) any {
	if r.v == nil || !r.v.IsSet(key) {
		return def
	}
	return r.v.Get(key)
}

// NewViperReader wraps an already loaded viper instance.
func NewViperReader(v *viper.Viper) Reader {
	return &viperReader{v: v}
}

// MapReader is a static Reader, mostly useful in tests.
type MapReader map[string]any

func (m MapReader) Get(key string, def any) any {
	if val, ok := m[key]; ok {
		return val
	}
	return def
}

func GetString(r Reader, key string, def string) string {
	return cast.ToString(r.Get(key, def))
}

func GetBool(r Reader, key string, def bool) bool {
	return cast.ToBool(r.Get(key, def))
}

func GetInt(r Reader, key string, def int) int {
	return cast.ToInt(r.Get(key, def))
}

// GetDuration accepts durations and duration strings such as "60s".
// Bare numbers are taken as seconds.
func GetDuration(r Reader, key string, def time.Duration) time.Duration {
	switch val := r.Get(key, def).(type) {
	case time.Duration:
		return val
	case string:
		if d, err := cast.ToDurationE(val); err == nil && !isNumeric(val) {
			return d
		}
		return time.Duration(cast.ToInt64(val)) * time.Second
	default:
		return time.Duration(cast.ToInt64(val)) * time.Second
	}
}

func GetStringSlice(r Reader, key string, def []string) []string {
	return cast.ToStringSlice(r.Get(key, def))
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
