package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/khanghh/kgate/model"
	"gorm.io/gorm"
)

const (
	DenialCredentials        = "CREDENTIALS"
	DenialInactiveUser       = "INACTIVE_USER"
	DenialIsPortalUser       = "IS_PORTAL_USER"
	DenialIsNotPortalUser    = "IS_NOT_PORTAL_USER"
	DenialUserIsNotInPortal  = "USER_IS_NOT_IN_PORTAL"
	DenialSecondFactorFailed = "SECOND_FACTOR"

	DenialSecondFactorUnavailable = "SECOND_FACTOR_UNAVAILABLE"
)

// Attempt describes the request behind one authentication attempt.
type Attempt struct {
	Username             string
	PortalID             string
	IPAddress            string
	RequestTime          time.Time
	RequestMethod        string
	RequestURL           string
	AuthenticationMethod string
}

// Log keeps one AuthLogRecord per authentication attempt.
type Log struct {
	repo   AuthLogRepository
	logger *slog.Logger
}

// Begin opens the record of an attempt. When user is nil the credentials did
// not match: the record is stored right away as denied. Otherwise it stays in
// memory until Deny or Commit.
func (l *Log) Begin(ctx context.Context, attempt Attempt, user *model.User) (*model.AuthLogRecord, error) {
	username := attempt.Username
	if username == "" && user != nil {
		username = user.Username
	}
	record := &model.AuthLogRecord{
		Username:             username,
		PortalID:             attempt.PortalID,
		IPAddress:            attempt.IPAddress,
		RequestTime:          attempt.RequestTime.UTC(),
		RequestMethod:        attempt.RequestMethod,
		RequestURL:           attempt.RequestURL,
		AuthenticationMethod: attempt.AuthenticationMethod,
	}
	if user != nil {
		record.UserID = user.ID
		return record, nil
	}

	record.IsDenied = true
	record.DenialReason = DenialCredentials
	return record, l.repo.Save(ctx, record)
}

// Deny marks the record denied with reason and stores it. The first reason wins.
func (l *Log) Deny(ctx context.Context, record *model.AuthLogRecord, reason string) error {
	if record == nil {
		return nil
	}
	if record.DenialReason != "" {
		return nil
	}
	record.IsDenied = true
	record.DenialReason = reason
	l.logger.Debug("Auth attempt denied", "username", record.Username, "ip", record.IPAddress, "reason", reason)
	return l.repo.Save(ctx, record)
}

// AttachToken links the session token issued by the attempt.
func (l *Log) AttachToken(record *model.AuthLogRecord, authTokenID string) {
	if record != nil {
		record.AuthTokenID = authTokenID
	}
}

func (l *Log) Commit(ctx context.Context, record *model.AuthLogRecord) error {
	if record == nil {
		return nil
	}
	return l.repo.Save(ctx, record)
}

// CountDenied counts denied attempts from ipAddress since the given time.
func (l *Log) CountDenied(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	count, err := l.repo.CountDenied(ctx, ipAddress, since.UTC())
	return int(count), err
}

// LatestForToken returns the most recent record of the attempt that issued
// the token, or nil.
func (l *Log) LatestForToken(ctx context.Context, authTokenID string) (*model.AuthLogRecord, error) {
	record, err := l.repo.LatestByToken(ctx, authTokenID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return record, err
}

func NewLog(repo AuthLogRepository, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		repo:   repo,
		logger: logger,
	}
}
