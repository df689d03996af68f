package users

import (
	"context"

	"github.com/khanghh/kgate/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AuthFactor string

const AuthFactorTOTP AuthFactor = "totp"

type UserFactorRepository interface {
	WithTx(tx *gorm.DB) UserFactorRepository
	Upsert(ctx context.Context, userFactor *model.UserFactor) error
	GetUserFactor(ctx context.Context, uid uint, factorType string) (*model.UserFactor, error)
}

type userFactorRepository struct {
	db *gorm.DB
}

func (r *userFactorRepository) WithTx(tx *gorm.DB) UserFactorRepository {
	return NewUserFactorRepository(tx)
}

func (r *userFactorRepository) Upsert(ctx context.Context, userFactor *model.UserFactor) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "type"}},
			DoUpdates: clause.AssignmentColumns([]string{"secret", "enabled", "updated_at"}),
		}).
		Create(userFactor).Error
}

func (r *userFactorRepository) GetUserFactor(ctx context.Context, uid uint, factorType string) (*model.UserFactor, error) {
	var factor model.UserFactor
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", uid, factorType).
		First(&factor).Error
	if err != nil {
		return nil, err
	}
	return &factor, nil
}

func NewUserFactorRepository(db *gorm.DB) UserFactorRepository {
	return &userFactorRepository{db}
}
