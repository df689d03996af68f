package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/khanghh/kgate/internal/config"
	"github.com/khanghh/kgate/internal/login"
	"github.com/khanghh/kgate/internal/store"
	"github.com/khanghh/kgate/internal/twofactor"
	"github.com/khanghh/kgate/internal/users"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

var (
	usernameFlag = &cli.StringFlag{
		Name:     "username",
		Usage:    "Login name of the user",
		Required: true,
	}
	portalFlag = &cli.StringFlag{
		Name:     "portal",
		Usage:    "Portal id",
		Required: true,
	}
)

var userCommand = &cli.Command{
	Name:  "user",
	Usage: "Manage users",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "Create a user",
			Flags: []cli.Flag{
				usernameFlag,
				&cli.StringFlag{Name: "password", Required: true},
				&cli.StringFlag{Name: "email"},
				&cli.StringFlag{Name: "fullname"},
				&cli.BoolFlag{Name: "admin"},
				&cli.BoolFlag{Name: "portal-user"},
				&cli.BoolFlag{Name: "inactive"},
			},
			Action: createUser,
		},
		{
			Name:  "set-2fa",
			Usage: "Choose the second factor of a user",
			Flags: []cli.Flag{
				usernameFlag,
				&cli.StringFlag{Name: "method", Value: twofactor.MethodEmailCode},
				&cli.BoolFlag{Name: "disable"},
			},
			Action: setUserTwoFactor,
		},
		{
			Name:   "totp-enroll",
			Usage:  "Generate a TOTP secret and print its provisioning url",
			Flags:  []cli.Flag{usernameFlag},
			Action: enrollUserTOTP,
		},
		{
			Name:  "totp-activate",
			Usage: "Confirm a TOTP enrollment with a code from the authenticator app",
			Flags: []cli.Flag{
				usernameFlag,
				&cli.StringFlag{Name: "code", Required: true},
			},
			Action: activateUserTOTP,
		},
	},
}

var portalCommand = &cli.Command{
	Name:  "portal",
	Usage: "Manage portals",
	Subcommands: []*cli.Command{
		{
			Name:   "create",
			Usage:  "Create a portal and print its id",
			Flags:  []cli.Flag{&cli.StringFlag{Name: "name", Required: true}},
			Action: createPortal,
		},
		{
			Name:   "add-user",
			Usage:  "Make a user a member of a portal",
			Flags:  []cli.Flag{portalFlag, usernameFlag},
			Action: addPortalUser,
		},
	},
}

var tokenCommand = &cli.Command{
	Name:  "token",
	Usage: "Mint credentials for service accounts",
	Subcommands: []*cli.Command{
		{
			Name:  "jwt",
			Usage: "Sign a JWT accepted by the Jwt login method",
			Flags: []cli.Flag{
				usernameFlag,
				&cli.DurationFlag{Name: "ttl", Value: time.Hour},
			},
			Action: signUserJWT,
		},
	},
}

type adminContext struct {
	config      *config.Config
	db          *gorm.DB
	userService *users.UserService
}

func initAdminContext(ctx *cli.Context) (*adminContext, error) {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return nil, err
	}
	mustInitLogger(cfg.Debug || ctx.IsSet(debugFlag.Name))
	db := mustInitDatabase(cfg.MySQL)
	return &adminContext{
		config:      cfg,
		db:          db,
		userService: newUserService(db),
	}, nil
}

func createUser(ctx *cli.Context) error {
	admin, err := initAdminContext(ctx)
	if err != nil {
		return err
	}
	username := ctx.String("username")
	user, err := admin.userService.CreateUser(ctx.Context, users.CreateUserOptions{
		Username:     username,
		Password:     ctx.String("password"),
		Email:        ctx.String("email"),
		FullName:     ctx.String("fullname"),
		IsAdmin:      ctx.Bool("admin"),
		IsPortalUser: ctx.Bool("portal-user"),
		Inactive:     ctx.Bool("inactive"),
	})
	if errors.Is(err, users.ErrUsernameTaken) {
		return cli.Exit(fmt.Sprintf("user %q already exists", username), 1)
	} else if err != nil {
		return err
	}
	fmt.Println(user.ID)
	return nil
}

func setUserTwoFactor(ctx *cli.Context) error {
	admin, err := initAdminContext(ctx)
	if err != nil {
		return err
	}
	user, err := admin.userService.GetUserByUsername(ctx.Context, ctx.String("username"))
	if err != nil {
		return err
	}
	return admin.userService.SetTwoFactor(ctx.Context, user.ID, ctx.String("method"), !ctx.Bool("disable"))
}

func newAdminTotp(admin *adminContext) *twofactor.Totp {
	redisStorage := mustInitRedisStorage(admin.config.Redis)
	return twofactor.NewTotp(users.NewUserFactorRepository(admin.db), store.NewRedisStorage(redisStorage.Conn()), nil)
}

func enrollUserTOTP(ctx *cli.Context) error {
	admin, err := initAdminContext(ctx)
	if err != nil {
		return err
	}
	user, err := admin.userService.GetUserByUsername(ctx.Context, ctx.String("username"))
	if err != nil {
		return err
	}
	key, err := newAdminTotp(admin).Enroll(ctx.Context, user)
	if err != nil {
		return err
	}
	fmt.Println(key.URL())
	return nil
}

func activateUserTOTP(ctx *cli.Context) error {
	admin, err := initAdminContext(ctx)
	if err != nil {
		return err
	}
	user, err := admin.userService.GetUserByUsername(ctx.Context, ctx.String("username"))
	if err != nil {
		return err
	}
	return newAdminTotp(admin).Activate(ctx.Context, user, ctx.String("code"))
}

func createPortal(ctx *cli.Context) error {
	admin, err := initAdminContext(ctx)
	if err != nil {
		return err
	}
	portal, err := admin.userService.CreatePortal(ctx.Context, ctx.String("name"))
	if err != nil {
		return err
	}
	fmt.Println(portal.ID)
	return nil
}

func addPortalUser(ctx *cli.Context) error {
	admin, err := initAdminContext(ctx)
	if err != nil {
		return err
	}
	portal, err := admin.userService.GetPortal(ctx.Context, ctx.String("portal"))
	if err != nil {
		return err
	}
	user, err := admin.userService.GetUserByUsername(ctx.Context, ctx.String("username"))
	if err != nil {
		return err
	}
	return admin.userService.AddPortalUser(ctx.Context, portal, user)
}

func signUserJWT(ctx *cli.Context) error {
	admin, err := initAdminContext(ctx)
	if err != nil {
		return err
	}
	if admin.config.MasterKey == "" {
		return fmt.Errorf("masterKey is not configured, %s login is disabled", login.MethodJWT)
	}
	user, err := admin.userService.GetUserByUsername(ctx.Context, ctx.String("username"))
	if err != nil {
		return err
	}
	token, err := login.NewJWT(admin.userService, admin.config.MasterKey).Sign(user.Username, ctx.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
