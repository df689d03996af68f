package tokens

import (
	"context"
	"time"

	"github.com/khanghh/kgate/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"
)

type TokenRepository interface {
	WithTx(tx *gorm.DB) TokenRepository
	Transaction(ctx context.Context, fn func(repo TokenRepository) error) error
	FindByToken(ctx context.Context, token string) (*model.AuthToken, error)
	Create(ctx context.Context, token *model.AuthToken) error
	LockUser(ctx context.Context, userID uint) error
	DeactivateUserTokens(ctx context.Context, userID uint) (int64, error)
	Deactivate(ctx context.Context, tokenID string) error
	UpdateLastAccess(ctx context.Context, tokenID string, lastAccess time.Time) error
	CountActive(ctx context.Context, userID uint) (int64, error)
}

type tokenRepository struct {
	db *gorm.DB
}

func (r *tokenRepository) WithTx(tx *gorm.DB) TokenRepository {
	return NewTokenRepository(tx)
}

func (r *tokenRepository) Transaction(ctx context.Context, fn func(repo TokenRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

// FindByToken reads from the primary, a replica may not have a token issued a moment ago.
func (r *tokenRepository) FindByToken(ctx context.Context, token string) (*model.AuthToken, error) {
	var authToken model.AuthToken
	err := r.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Where("token = ?", token).
		First(&authToken).Error
	if err != nil {
		return nil, err
	}
	return &authToken, nil
}

func (r *tokenRepository) Create(ctx context.Context, token *model.AuthToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

// LockUser takes a row lock on the user so token rotation for one user is serialized.
func (r *tokenRepository) LockUser(ctx context.Context, userID uint) error {
	var user model.User
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", userID).
		Take(&user).Error
}

func (r *tokenRepository) DeactivateUserTokens(ctx context.Context, userID uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.AuthToken{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

func (r *tokenRepository) Deactivate(ctx context.Context, tokenID string) error {
	return r.db.WithContext(ctx).
		Model(&model.AuthToken{}).
		Where("id = ?", tokenID).
		Update("is_active", false).Error
}

func (r *tokenRepository) UpdateLastAccess(ctx context.Context, tokenID string, lastAccess time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.AuthToken{}).
		Where("id = ?", tokenID).
		Update("last_access", lastAccess).Error
}

func (r *tokenRepository) CountActive(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.AuthToken{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Count(&count).Error
	return count, err
}

func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{
		db: db,
	}
}
