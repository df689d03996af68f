package twofactor

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/khanghh/kgate/internal/store"
	"github.com/khanghh/kgate/internal/users"
	"github.com/khanghh/kgate/model"
	"github.com/khanghh/kgate/params"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"
)

const totpPeriod = 30

// FactorStore is the part of users.UserFactorRepository Totp needs.
type FactorStore interface {
	Upsert(ctx context.Context, userFactor *model.UserFactor) error
	GetUserFactor(ctx context.Context, uid uint, factorType string) (*model.UserFactor, error)
}

type totpState struct {
	Window int64 `redis:"window"`
}

// Totp checks codes from an authenticator app. Each time window is accepted
// at most once per user, and never after a later window was accepted.
type Totp struct {
	factors FactorStore
	windows store.Store[totpState]
	issuer  string
	now     func() time.Time
	logger  *slog.Logger
}

func (m *Totp) factor(ctx context.Context, userID uint) (*model.UserFactor, error) {
	factor, err := m.factors.GetUserFactor(ctx, userID, string(users.AuthFactorTOTP))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTOTPNotEnrolled
	} else if err != nil {
		return nil, err
	}
	if !factor.Enabled || factor.Secret == "" {
		return nil, ErrTOTPNotEnrolled
	}
	return factor, nil
}

func (m *Totp) Challenge(ctx context.Context, user *model.User) (map[string]any, error) {
	if _, err := m.factor(ctx, user.ID); err != nil {
		return nil, err
	}
	return map[string]any{"method": MethodTotp}, nil
}

func (m *Totp) Verify(ctx context.Context, user *model.User, code string) (bool, error) {
	factor, err := m.factor(ctx, user.ID)
	if errors.Is(err, ErrTOTPNotEnrolled) {
		m.logger.Warn("AUTH: totp code supplied for user without totp", "userId", user.ID)
		return false, nil
	} else if err != nil {
		return false, err
	}

	window, ok := matchWindow(code, factor.Secret, m.now())
	if !ok {
		return false, nil
	}

	key := strconv.FormatUint(uint64(user.ID), 10)
	var lastWindow int64
	if err := m.windows.GetAttr(ctx, key, "window", &lastWindow); err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if window <= lastWindow {
		return false, nil
	}

	claimKey := key + ":" + strconv.FormatInt(window, 10)
	claims, err := m.windows.IncrAttr(ctx, claimKey, "used", 1)
	if err != nil {
		return false, err
	}
	if err := m.windows.Expire(ctx, claimKey, time.Now().Add(params.TwoFactorTOTPWindowTTL)); err != nil {
		return false, err
	}
	if claims != 1 {
		m.logger.Info("AUTH: totp code replayed", "userId", user.ID, "window", window)
		return false, nil
	}
	if err := m.windows.Set(ctx, key, totpState{Window: window}, params.TwoFactorTOTPWindowTTL); err != nil {
		return false, err
	}
	return true, nil
}

// matchWindow returns the time step the code belongs to, accepting one step
// of clock drift in either direction.
func matchWindow(code string, secret string, now time.Time) (int64, bool) {
	opts := totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
	for _, drift := range []int64{0, -1, 1} {
		at := now.Add(time.Duration(drift*totpPeriod) * time.Second)
		if valid, err := totp.ValidateCustom(code, secret, at, opts); err == nil && valid {
			return at.Unix() / totpPeriod, true
		}
	}
	return 0, false
}

// Enroll generates a new secret for the user. The factor stays disabled
// until Activate confirms a code from it.
func (m *Totp) Enroll(ctx context.Context, user *model.User) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: user.Username,
		Period:      totpPeriod,
	})
	if err != nil {
		return nil, err
	}
	err = m.factors.Upsert(ctx, &model.UserFactor{
		UserID: user.ID,
		Type:   string(users.AuthFactorTOTP),
		Secret: key.Secret(),
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (m *Totp) Activate(ctx context.Context, user *model.User, code string) error {
	factor, err := m.factors.GetUserFactor(ctx, user.ID, string(users.AuthFactorTOTP))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTOTPNotEnrolled
	} else if err != nil {
		return err
	}
	valid, _ := totp.ValidateCustom(code, factor.Secret, m.now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if !valid {
		return ErrTOTPVerifyFailed
	}
	return m.factors.Upsert(ctx, &model.UserFactor{
		UserID:  user.ID,
		Type:    factor.Type,
		Secret:  factor.Secret,
		Enabled: true,
	})
}

func NewTotp(factors FactorStore, storage store.Storage, logger *slog.Logger) *Totp {
	if logger == nil {
		logger = slog.Default()
	}
	return &Totp{
		factors: factors,
		windows: store.New[totpState](storage, params.TwoFactorTOTPKeyPrefix),
		issuer:  params.TwoFactorTOTPIssuer,
		now:     time.Now,
		logger:  logger,
	}
}
