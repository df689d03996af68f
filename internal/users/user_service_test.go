package users

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/khanghh/kgate/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	return db
}

func newTestUserService(db *gorm.DB) *UserService {
	return NewUserService(
		NewUserRepository(db),
		NewPortalRepository(db),
		NewUserDataRepository(db),
		NewUserFactorRepository(db),
	)
}

func TestCreateAndGetUser(t *testing.T) {
	ctx := context.Background()
	svc := newTestUserService(newTestDB(t))

	created, err := svc.CreateUser(ctx, CreateUserOptions{Username: "alice", Password: "s3cret!", Inactive: true})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected a generated user id")
	}

	user, err := svc.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if user.IsActive {
		t.Fatalf("expected the user to be stored inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("s3cret!")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}

	if _, err := svc.CreateUser(ctx, CreateUserOptions{Username: "alice", Password: "other"}); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	if _, err := svc.GetUserByUsername(ctx, "bob"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.GetUserByUsername(ctx, "  "); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for blank username, got %v", err)
	}
}

func TestUpdatePasswordChangesHash(t *testing.T) {
	ctx := context.Background()
	svc := newTestUserService(newTestDB(t))

	user, err := svc.CreateUser(ctx, CreateUserOptions{Username: "alice", Password: "old"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := svc.UpdatePassword(ctx, user.ID, "new"); err != nil {
		t.Fatalf("UpdatePassword failed: %v", err)
	}
	updated, _ := svc.GetUserByID(ctx, user.ID)
	if updated.Password == user.Password {
		t.Fatalf("expected password hash to change")
	}
}

func TestPortalMembership(t *testing.T) {
	ctx := context.Background()
	svc := newTestUserService(newTestDB(t))

	member, _ := svc.CreateUser(ctx, CreateUserOptions{Username: "member", Password: "x", IsPortalUser: true})
	outsider, _ := svc.CreateUser(ctx, CreateUserOptions{Username: "outsider", Password: "x", IsPortalUser: true})
	portal, err := svc.CreatePortal(ctx, "customers")
	if err != nil {
		t.Fatalf("CreatePortal failed: %v", err)
	}
	if err := svc.AddPortalUser(ctx, portal, member); err != nil {
		t.Fatalf("AddPortalUser failed: %v", err)
	}

	if ok, err := svc.IsPortalMember(ctx, portal.ID, member.ID); err != nil || !ok {
		t.Fatalf("IsPortalMember(member) = %v, %v", ok, err)
	}
	if ok, err := svc.IsPortalMember(ctx, portal.ID, outsider.ID); err != nil || ok {
		t.Fatalf("IsPortalMember(outsider) = %v, %v", ok, err)
	}

	if _, err := svc.GetPortal(ctx, "missing"); !errors.Is(err, ErrPortalNotFound) {
		t.Fatalf("expected ErrPortalNotFound, got %v", err)
	}
}

func TestLoadTeams(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := newTestUserService(db)

	user, _ := svc.CreateUser(ctx, CreateUserOptions{Username: "alice", Password: "x"})
	if err := db.Model(user).Association("Teams").Append(&model.Team{Name: "sales"}); err != nil {
		t.Fatalf("failed to add team: %v", err)
	}

	fresh, _ := svc.GetUserByID(ctx, user.ID)
	if len(fresh.Teams) != 0 {
		t.Fatalf("teams should not be loaded eagerly by lookups")
	}
	if err := svc.LoadTeams(ctx, fresh); err != nil {
		t.Fatalf("LoadTeams failed: %v", err)
	}
	if len(fresh.Teams) != 1 || fresh.Teams[0].Name != "sales" {
		t.Fatalf("unexpected teams %+v", fresh.Teams)
	}
}

func TestTwoFactorConfig(t *testing.T) {
	ctx := context.Background()
	svc := newTestUserService(newTestDB(t))

	user, _ := svc.CreateUser(ctx, CreateUserOptions{Username: "alice", Password: "x"})
	cfg, err := svc.GetTwoFactorConfig(ctx, user.ID)
	if err != nil || cfg != nil {
		t.Fatalf("expected no config, got %+v, %v", cfg, err)
	}

	if err := svc.SetTwoFactor(ctx, user.ID, "Totp", true); err != nil {
		t.Fatalf("SetTwoFactor failed: %v", err)
	}
	if err := svc.SetTwoFactor(ctx, user.ID, "EmailCode", true); err != nil {
		t.Fatalf("SetTwoFactor update failed: %v", err)
	}
	cfg, err = svc.GetTwoFactorConfig(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetTwoFactorConfig failed: %v", err)
	}
	if !cfg.TwoFactorEnabled || cfg.TwoFactorMethod != "EmailCode" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
