package twofactor

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/khanghh/kgate/internal/mail"
	"github.com/khanghh/kgate/internal/store"
	"github.com/khanghh/kgate/model"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func newTestStorage(t *testing.T) (*miniredis.Miniredis, store.Storage) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, store.NewRedisStorage(rdb)
}

type captureSender struct {
	msgs chan *mail.Message
}

func (s *captureSender) Send(message *mail.Message) error {
	s.msgs <- message
	return nil
}

var codePattern = regexp.MustCompile(`code is (\d{6})`)

func (s *captureSender) nextCode(t *testing.T) string {
	select {
	case msg := <-s.msgs:
		match := codePattern.FindStringSubmatch(msg.Body)
		if match == nil {
			t.Fatalf("no code in mail body %q", msg.Body)
		}
		return match[1]
	case <-time.After(2 * time.Second):
		t.Fatalf("code mail was not sent")
	}
	return ""
}

func TestEmailCode(t *testing.T) {
	ctx := context.Background()
	mr, storage := newTestStorage(t)
	sender := &captureSender{msgs: make(chan *mail.Message, 4)}
	method := NewEmailCode(storage, sender, "master-key", "kgate", nil)
	user := &model.User{ID: 1, Username: "alice", Email: "alice@example.com"}

	data, err := method.Challenge(ctx, user)
	if err != nil {
		t.Fatalf("Challenge failed: %v", err)
	}
	if data["method"] != MethodEmailCode || data["email"] != "a****@example.com" {
		t.Fatalf("unexpected login data %v", data)
	}
	code := sender.nextCode(t)

	if ok, err := method.Verify(ctx, user, "000000x"); err != nil || ok {
		t.Fatalf("wrong code accepted: %v, %v", ok, err)
	}
	if ok, err := method.Verify(ctx, user, code); err != nil || !ok {
		t.Fatalf("correct code rejected: %v, %v", ok, err)
	}
	if ok, _ := method.Verify(ctx, user, code); ok {
		t.Fatalf("code must not be accepted twice")
	}

	method.Challenge(ctx, user)
	code = sender.nextCode(t)
	mr.FastForward(11 * time.Minute)
	if ok, _ := method.Verify(ctx, user, code); ok {
		t.Fatalf("expired code accepted")
	}

	if _, err := method.Challenge(ctx, &model.User{ID: 2}); !errors.Is(err, ErrNoEmailAddress) {
		t.Fatalf("expected ErrNoEmailAddress, got %v", err)
	}
}

func TestEmailCodeConcurrentVerify(t *testing.T) {
	ctx := context.Background()
	_, storage := newTestStorage(t)
	sender := &captureSender{msgs: make(chan *mail.Message, 1)}
	method := NewEmailCode(storage, sender, "master-key", "kgate", nil)
	user := &model.User{ID: 1, Username: "alice", Email: "alice@example.com"}

	if _, err := method.Challenge(ctx, user); err != nil {
		t.Fatalf("Challenge failed: %v", err)
	}
	code := sender.nextCode(t)

	accepted := countAccepted(t, 20, func() (bool, error) {
		return method.Verify(ctx, user, code)
	})
	if accepted != 1 {
		t.Fatalf("one code accepted %d times", accepted)
	}
}

func TestEmailCodeAttemptsExhausted(t *testing.T) {
	ctx := context.Background()
	_, storage := newTestStorage(t)
	sender := &captureSender{msgs: make(chan *mail.Message, 1)}
	method := NewEmailCode(storage, sender, "master-key", "kgate", nil)
	user := &model.User{ID: 1, Username: "alice", Email: "alice@example.com"}

	method.Challenge(ctx, user)
	code := sender.nextCode(t)
	for i := 0; i < maxCodeAttempts; i++ {
		method.Verify(ctx, user, "wrong")
	}
	if ok, _ := method.Verify(ctx, user, code); ok {
		t.Fatalf("code should be discarded after too many wrong guesses")
	}
}

type memoryFactors struct {
	factors map[string]*model.UserFactor
}

func (m *memoryFactors) Upsert(ctx context.Context, f *model.UserFactor) error {
	copied := *f
	m.factors[f.Type] = &copied
	return nil
}

func (m *memoryFactors) GetUserFactor(ctx context.Context, uid uint, factorType string) (*model.UserFactor, error) {
	f, ok := m.factors[factorType]
	if !ok || f.UserID != uid {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *f
	return &copied, nil
}

func totpCode(t *testing.T, secret string, at time.Time) string {
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("failed to generate code: %v", err)
	}
	return code
}

func TestTotp(t *testing.T) {
	ctx := context.Background()
	_, storage := newTestStorage(t)
	factors := &memoryFactors{factors: map[string]*model.UserFactor{}}
	method := NewTotp(factors, storage, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	method.now = func() time.Time { return now }
	user := &model.User{ID: 1, Username: "alice"}

	if _, err := method.Challenge(ctx, user); !errors.Is(err, ErrTOTPNotEnrolled) {
		t.Fatalf("expected ErrTOTPNotEnrolled, got %v", err)
	}

	key, err := method.Enroll(ctx, user)
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if _, err := method.Challenge(ctx, user); !errors.Is(err, ErrTOTPNotEnrolled) {
		t.Fatalf("factor must stay disabled until activated, got %v", err)
	}
	if err := method.Activate(ctx, user, "abcdef"); !errors.Is(err, ErrTOTPVerifyFailed) {
		t.Fatalf("expected ErrTOTPVerifyFailed, got %v", err)
	}
	if err := method.Activate(ctx, user, totpCode(t, key.Secret(), now)); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	if data, err := method.Challenge(ctx, user); err != nil || data["method"] != MethodTotp {
		t.Fatalf("Challenge = %v, %v", data, err)
	}

	code := totpCode(t, key.Secret(), now)
	if ok, err := method.Verify(ctx, user, code); err != nil || !ok {
		t.Fatalf("valid code rejected: %v, %v", ok, err)
	}
	if ok, _ := method.Verify(ctx, user, code); ok {
		t.Fatalf("replayed code accepted")
	}

	now = now.Add(time.Minute)
	if ok, _ := method.Verify(ctx, user, totpCode(t, key.Secret(), now)); !ok {
		t.Fatalf("code of a later window rejected")
	}
	if ok, _ := method.Verify(ctx, user, "12345"); ok {
		t.Fatalf("malformed code accepted")
	}
}

// countAccepted runs verify from n goroutines at once and counts successes.
func countAccepted(t *testing.T, n int, verify func() (bool, error)) int {
	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		accepted atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := verify()
			if err != nil {
				t.Errorf("Verify failed: %v", err)
			}
			if ok {
				accepted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	return int(accepted.Load())
}

func newEnrolledTotp(t *testing.T, now *time.Time) (*Totp, *model.User, string) {
	ctx := context.Background()
	_, storage := newTestStorage(t)
	method := NewTotp(&memoryFactors{factors: map[string]*model.UserFactor{}}, storage, nil)
	method.now = func() time.Time { return *now }
	user := &model.User{ID: 1, Username: "alice"}

	key, err := method.Enroll(ctx, user)
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if err := method.Activate(ctx, user, totpCode(t, key.Secret(), *now)); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	return method, user, key.Secret()
}

func TestTotpRejectsCodeInNextWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 5, 0, time.UTC)
	method, user, secret := newEnrolledTotp(t, &now)

	code := totpCode(t, secret, now)
	if ok, err := method.Verify(ctx, user, code); err != nil || !ok {
		t.Fatalf("valid code rejected: %v, %v", ok, err)
	}

	now = now.Add(totpPeriod * time.Second)
	if ok, _ := method.Verify(ctx, user, code); ok {
		t.Fatalf("code accepted again in the next window")
	}
	if ok, err := method.Verify(ctx, user, totpCode(t, secret, now)); err != nil || !ok {
		t.Fatalf("fresh code rejected: %v, %v", ok, err)
	}
}

func TestTotpPreviousWindowCode(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 5, 0, time.UTC)
	method, user, secret := newEnrolledTotp(t, &now)

	late := totpCode(t, secret, now.Add(-totpPeriod*time.Second))
	if ok, err := method.Verify(ctx, user, late); err != nil || !ok {
		t.Fatalf("code of the previous window rejected: %v, %v", ok, err)
	}
	if ok, err := method.Verify(ctx, user, totpCode(t, secret, now)); err != nil || !ok {
		t.Fatalf("current code rejected after a late one: %v, %v", ok, err)
	}
	if ok, _ := method.Verify(ctx, user, late); ok {
		t.Fatalf("late code accepted twice")
	}
}

func TestTotpConcurrentVerify(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 5, 0, time.UTC)
	method, user, secret := newEnrolledTotp(t, &now)

	code := totpCode(t, secret, now)
	accepted := countAccepted(t, 20, func() (bool, error) {
		return method.Verify(ctx, user, code)
	})
	if accepted != 1 {
		t.Fatalf("one code accepted %d times", accepted)
	}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	_, storage := newTestStorage(t)
	registry.Register(MethodTotp, NewTotp(&memoryFactors{factors: map[string]*model.UserFactor{}}, storage, nil))
	if _, err := registry.Get(MethodTotp); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := registry.Get("Sms"); !errors.Is(err, ErrMethodNotFound) {
		t.Fatalf("expected ErrMethodNotFound, got %v", err)
	}
}
