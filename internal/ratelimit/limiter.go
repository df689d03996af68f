package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/khanghh/kgate/internal/config"
	"github.com/khanghh/kgate/params"
)

var ErrTooManyAttempts = errors.New("too many failed login attempts")

// DeniedCounter counts denied attempts from one address since a point in time.
type DeniedCounter interface {
	CountDenied(ctx context.Context, ipAddress string, since time.Time) (int, error)
}

// Limiter throttles login attempts by origin address over a sliding window of
// denied attempts. Counting and deciding are not atomic, so concurrent
// attempts from one address can overshoot the limit slightly.
type Limiter struct {
	counter DeniedCounter
	config  config.Reader
	logger  *slog.Logger
}

func (l *Limiter) window() (time.Duration, int) {
	period := config.GetDuration(l.config, config.KeyFailedAttemptsPeriod, params.DefaultFailedAttemptsPeriod)
	maxAttempts := config.GetInt(l.config, config.KeyMaxFailedAttempts, params.DefaultMaxFailedAttempts)
	return period, maxAttempts
}

// CheckAllowed returns ErrTooManyAttempts when ipAddress has more denied
// attempts than allowed in the window ending at now.
func (l *Limiter) CheckAllowed(ctx context.Context, ipAddress string, now time.Time) error {
	period, maxAttempts := l.window()
	count, err := l.counter.CountDenied(ctx, ipAddress, now.Add(-period))
	if err != nil {
		return fmt.Errorf("count denied attempts: %w", err)
	}
	if count > maxAttempts {
		l.logger.Warn("AUTH: max failed login attempts exceeded", "ip", ipAddress, "count", count, "max", maxAttempts)
		return ErrTooManyAttempts
	}
	return nil
}

func NewLimiter(counter DeniedCounter, cfg config.Reader, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.MapReader{}
	}
	return &Limiter{
		counter: counter,
		config:  cfg,
		logger:  logger,
	}
}
