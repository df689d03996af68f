package users

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/khanghh/kgate/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type CreateUserOptions struct {
	Username     string
	FullName     string
	Email        string
	Password     string
	IsAdmin      bool
	IsPortalUser bool
	Inactive     bool
}

type UserService struct {
	userRepo       UserRepository
	portalRepo     PortalRepository
	userDataRepo   UserDataRepository
	userFactorRepo UserFactorRepository
}

func (s *UserService) GetUserByID(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.userRepo.First(ctx, "id = ?", userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUserNotFound
	}
	user, err := s.userRepo.First(ctx, "username = ?", username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) LoadTeams(ctx context.Context, user *model.User) error {
	return s.userRepo.LoadTeams(ctx, user)
}

func (s *UserService) CreateUser(ctx context.Context, opts CreateUserOptions) (*model.User, error) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := model.User{
		Username:     opts.Username,
		FullName:     opts.FullName,
		Email:        opts.Email,
		Password:     string(passwordHash),
		IsActive:     !opts.Inactive,
		IsAdmin:      opts.IsAdmin,
		IsPortalUser: opts.IsPortalUser,
	}

	var mysqlErr *mysql.MySQLError
	err = s.userRepo.Create(ctx, &user)
	if errors.Is(err, gorm.ErrDuplicatedKey) || (errors.As(err, &mysqlErr) && mysqlErr.Number == 1062) {
		return nil, ErrUsernameTaken
	} else if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdatePassword rotates the password hash. Tokens issued under the old hash
// stop authenticating since their snapshot no longer matches.
func (s *UserService) UpdatePassword(ctx context.Context, userID uint, newPassword string) error {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.userRepo.Updates(ctx, userID, map[string]interface{}{
		"password": string(passwordHash),
	})
}

func (s *UserService) GetPortal(ctx context.Context, portalID string) (*model.Portal, error) {
	portal, err := s.portalRepo.First(ctx, "id = ?", portalID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPortalNotFound
	}
	return portal, err
}

func (s *UserService) CreatePortal(ctx context.Context, name string) (*model.Portal, error) {
	portal := model.Portal{Name: name}
	if err := s.portalRepo.Create(ctx, &portal); err != nil {
		return nil, err
	}
	return &portal, nil
}

func (s *UserService) AddPortalUser(ctx context.Context, portal *model.Portal, user *model.User) error {
	return s.portalRepo.AddUser(ctx, portal, user)
}

func (s *UserService) IsPortalMember(ctx context.Context, portalID string, userID uint) (bool, error) {
	return s.portalRepo.IsRelated(ctx, portalID, userID)
}

// GetTwoFactorConfig returns nil without error when the user never configured two-factor.
func (s *UserService) GetTwoFactorConfig(ctx context.Context, userID uint) (*model.UserData, error) {
	data, err := s.userDataRepo.GetByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return data, err
}

func (s *UserService) SetTwoFactor(ctx context.Context, userID uint, method string, enabled bool) error {
	return s.userDataRepo.Upsert(ctx, &model.UserData{
		UserID:           userID,
		TwoFactorEnabled: enabled,
		TwoFactorMethod:  method,
	})
}

func NewUserService(userRepo UserRepository, portalRepo PortalRepository, userDataRepo UserDataRepository, userFactorRepo UserFactorRepository) *UserService {
	return &UserService{
		userRepo:       userRepo,
		portalRepo:     portalRepo,
		userDataRepo:   userDataRepo,
		userFactorRepo: userFactorRepo,
	}
}
