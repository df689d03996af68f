package audit

import (
	"context"
	"time"

	"github.com/khanghh/kgate/model"
	"gorm.io/gorm"
)

type AuthLogRepository interface {
	WithTx(tx *gorm.DB) AuthLogRepository
	Save(ctx context.Context, record *model.AuthLogRecord) error
	CountDenied(ctx context.Context, ipAddress string, since time.Time) (int64, error)
	LatestByToken(ctx context.Context, authTokenID string) (*model.AuthLogRecord, error)
}

type authLogRepository struct {
	db *gorm.DB
}

func (r *authLogRepository) WithTx(tx *gorm.DB) AuthLogRepository {
	return NewAuthLogRepository(tx)
}

func (r *authLogRepository) Save(ctx context.Context, record *model.AuthLogRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *authLogRepository) CountDenied(ctx context.Context, ipAddress string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.AuthLogRecord{}).
		Where("ip_address = ? AND is_denied = ? AND request_time >= ?", ipAddress, true, since).
		Count(&count).Error
	return count, err
}

func (r *authLogRepository) LatestByToken(ctx context.Context, authTokenID string) (*model.AuthLogRecord, error) {
	var record model.AuthLogRecord
	err := r.db.WithContext(ctx).
		Where("auth_token_id = ?", authTokenID).
		Order("request_time DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func NewAuthLogRepository(db *gorm.DB) AuthLogRepository {
	return &authLogRepository{
		db: db,
	}
}
