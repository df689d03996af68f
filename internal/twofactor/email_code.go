package twofactor

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"github.com/khanghh/kgate/internal/common"
	"github.com/khanghh/kgate/internal/mail"
	"github.com/khanghh/kgate/internal/store"
	"github.com/khanghh/kgate/model"
	"github.com/khanghh/kgate/params"
)

const maxCodeAttempts = 5

type emailCodeEntry struct {
	Hash     string `redis:"hash"`
	Attempts int    `redis:"attempts"`
}

// EmailCode mails a one-time numeric code to the user.
type EmailCode struct {
	masterKey string
	siteName  string
	codes     store.Store[emailCodeEntry]
	sender    mail.MailSender
	logger    *slog.Logger
}

func generateCode(length int) string {
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, _ := rand.Int(rand.Reader, ten)
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String()
}

func (m *EmailCode) codeKey(user *model.User) string {
	return strconv.FormatUint(uint64(user.ID), 10)
}

func (m *EmailCode) hashCode(user *model.User, code string) string {
	return common.CalculateHash(m.masterKey, user.ID, code)
}

// Challenge replaces any pending code of the user and mails a new one.
func (m *EmailCode) Challenge(ctx context.Context, user *model.User) (map[string]any, error) {
	if user.Email == "" {
		return nil, ErrNoEmailAddress
	}
	code := generateCode(params.TwoFactorCodeLength)
	entry := emailCodeEntry{Hash: m.hashCode(user, code)}
	if err := m.codes.Set(ctx, m.codeKey(user), entry, params.TwoFactorCodeExpiration); err != nil {
		return nil, err
	}

	name := user.FullName
	if name == "" {
		name = user.Username
	}
	msg, err := mail.TwoFactorCodeMessage(user.Email, mail.TwoFactorCodeParams{
		SiteName:      m.siteName,
		Name:          name,
		Code:          code,
		ExpireMinutes: int(params.TwoFactorCodeExpiration.Minutes()),
	})
	if err != nil {
		return nil, err
	}
	mail.SendAsync(m.sender, msg, m.logger)

	return map[string]any{
		"method": MethodEmailCode,
		"email":  maskEmail(user.Email),
	}, nil
}

// Verify consumes the pending code on success. A code is dropped after too
// many wrong guesses.
func (m *EmailCode) Verify(ctx context.Context, user *model.User, code string) (bool, error) {
	key := m.codeKey(user)
	entry, err := m.codes.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	if common.SecureCompare(m.hashCode(user, code), entry.Hash) {
		// only the request that removes the code may use it
		err := m.codes.Delete(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		} else if err != nil {
			return false, err
		}
		return true, nil
	}

	attempts, err := m.codes.IncrAttr(ctx, key, "attempts", 1)
	if err != nil {
		return false, err
	}
	if attempts >= maxCodeAttempts {
		m.logger.Warn("AUTH: email code discarded after failed attempts", "userId", user.ID, "attempts", attempts)
		m.codes.Delete(ctx, key)
	}
	return false, nil
}

func maskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 1 {
		return email
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}

func NewEmailCode(storage store.Storage, sender mail.MailSender, masterKey string, siteName string, logger *slog.Logger) *EmailCode {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailCode{
		masterKey: masterKey,
		siteName:  siteName,
		codes:     store.New[emailCodeEntry](storage, params.TwoFactorCodeKeyPrefix),
		sender:    sender,
		logger:    logger,
	}
}
