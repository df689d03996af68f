package users

import (
	"context"

	"github.com/khanghh/kgate/model"
	"gorm.io/gorm"
)

type PortalRepository interface {
	WithTx(tx *gorm.DB) PortalRepository
	First(ctx context.Context, conds ...interface{}) (*model.Portal, error)
	Create(ctx context.Context, portal *model.Portal) error
	AddUser(ctx context.Context, portal *model.Portal, user *model.User) error
	IsRelated(ctx context.Context, portalID string, userID uint) (bool, error)
}

type portalRepository struct {
	db *gorm.DB
}

func (r *portalRepository) First(ctx context.Context, conds ...interface{}) (*model.Portal, error) {
	var portal model.Portal
	if err := r.db.WithContext(ctx).First(&portal, conds...).Error; err != nil {
		return nil, err
	}
	return &portal, nil
}

func (r *portalRepository) Create(ctx context.Context, portal *model.Portal) error {
	return r.db.WithContext(ctx).Create(portal).Error
}

func (r *portalRepository) AddUser(ctx context.Context, portal *model.Portal, user *model.User) error {
	return r.db.WithContext(ctx).Model(portal).Association("Users").Append(user)
}

func (r *portalRepository) IsRelated(ctx context.Context, portalID string, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table(r.db.NamingStrategy.JoinTableName("portal_users")).
		Where("portal_id = ? AND user_id = ?", portalID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *portalRepository) WithTx(tx *gorm.DB) PortalRepository {
	return NewPortalRepository(tx)
}

func NewPortalRepository(db *gorm.DB) PortalRepository {
	return &portalRepository{db}
}
