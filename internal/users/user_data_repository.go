package users

import (
	"context"

	"github.com/khanghh/kgate/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserDataRepository interface {
	WithTx(tx *gorm.DB) UserDataRepository
	GetByUserID(ctx context.Context, userID uint) (*model.UserData, error)
	Upsert(ctx context.Context, data *model.UserData) error
}

type userDataRepository struct {
	db *gorm.DB
}

func (r *userDataRepository) GetByUserID(ctx context.Context, userID uint) (*model.UserData, error) {
	var data model.UserData
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&data).Error; err != nil {
		return nil, err
	}
	return &data, nil
}

func (r *userDataRepository) Upsert(ctx context.Context, data *model.UserData) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(data).Error
}

func (r *userDataRepository) WithTx(tx *gorm.DB) UserDataRepository {
	return NewUserDataRepository(tx)
}

func NewUserDataRepository(db *gorm.DB) UserDataRepository {
	return &userDataRepository{db}
}
