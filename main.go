package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/redis/v3"
	"github.com/khanghh/kgate/internal/audit"
	"github.com/khanghh/kgate/internal/auth"
	"github.com/khanghh/kgate/internal/common"
	"github.com/khanghh/kgate/internal/config"
	"github.com/khanghh/kgate/internal/handlers/api"
	"github.com/khanghh/kgate/internal/login"
	"github.com/khanghh/kgate/internal/mail"
	"github.com/khanghh/kgate/internal/middlewares"
	"github.com/khanghh/kgate/internal/ratelimit"
	"github.com/khanghh/kgate/internal/store"
	"github.com/khanghh/kgate/internal/tokens"
	"github.com/khanghh/kgate/internal/twofactor"
	"github.com/khanghh/kgate/internal/users"
	"github.com/khanghh/kgate/model"
	"github.com/khanghh/kgate/params"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
	gitTag    string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "kgate - authentication gateway for API and portal clients"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
		userCommand,
		portalCommand,
		tokenCommand,
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if len(dbConfig.Replicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(dbConfig.Replicas))
		for _, dsn := range dbConfig.Replicas {
			replicas = append(replicas, mysql.Open(dsn))
		}
		resolver := dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		})
		if err := db.Use(resolver); err != nil {
			slog.Error("Failed to register read replicas", "error", err)
			os.Exit(1)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("Failed to get database handle", "error", err)
		os.Exit(1)
	}
	if dbConfig.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConns)
	}
	if dbConfig.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dbConfig.MaxOpenConns)
	}
	if dbConfig.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(dbConfig.ConnMaxIdleTime) * time.Second)
	}
	if dbConfig.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Second)
	}

	if err := model.AutoMigrate(db); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	return db
}

func mustInitMailSender(mailCfg config.MailConfig) mail.MailSender {
	switch mailCfg.Backend {
	case "", "log":
		return mail.NewLogMailSender(nil)
	case "smtp":
		sender, err := mail.NewSMTPMailSender(mailCfg.SMTP)
		if err != nil {
			log.Fatalf("Failed to initialize smtp mail sender: %v", err)
		}
		return sender
	}
	log.Fatalf("Unsupported mail sender backend %s", mailCfg.Backend)
	return nil
}

func mustInitRedisStorage(redisCfg config.RedisConfig) *redis.Storage {
	return redis.New(redis.Config{
		URL:           redisCfg.URL,
		PoolSize:      redisCfg.PoolSize,
		IsClusterMode: redisCfg.ClusterMode,
	})
}

func mustInitLoginMethods(cfg *config.Config, userService *users.UserService) *login.Registry {
	registry := login.NewRegistry()
	mustRegister := func(meta login.Metadata, method login.Method) {
		if err := registry.Register(meta, method); err != nil {
			log.Fatalf("Failed to register login method %s: %v", meta.Name, err)
		}
	}

	mustRegister(login.Metadata{Name: login.MethodPassword}, login.NewPassword(userService, nil))
	if cfg.MasterKey != "" {
		mustRegister(login.Metadata{Name: login.MethodJWT, API: true}, login.NewJWT(userService, cfg.MasterKey))
	}
	if providerCfg := cfg.AuthProviders.OAuthPassword; providerCfg != nil {
		method, err := login.NewOAuthPassword(userService, login.OAuthPasswordOptions{
			TokenURL:     providerCfg.TokenURL,
			ClientID:     providerCfg.ClientID,
			ClientSecret: providerCfg.ClientSecret,
			Scopes:       providerCfg.Scope,
		}, nil)
		if err != nil {
			log.Fatalf("Failed to initialize %s login method: %v", login.MethodOAuthPassword, err)
		}
		mustRegister(login.Metadata{Name: login.MethodOAuthPassword, API: true}, method)
	}
	slog.Info("Login methods registered", "methods", registry.Names())
	return registry
}

func mustInitTwoFactorMethods(cfg *config.Config, cacheStorage store.Storage, userFactorRepo users.UserFactorRepository, mailSender mail.MailSender) *twofactor.Registry {
	registry := twofactor.NewRegistry()
	registry.Register(twofactor.MethodEmailCode, twofactor.NewEmailCode(cacheStorage, mailSender, cfg.MasterKey, cfg.SiteName, nil))
	registry.Register(twofactor.MethodTotp, twofactor.NewTotp(userFactorRepo, cacheStorage, nil))
	return registry
}

func newUserService(db *gorm.DB) *users.UserService {
	return users.NewUserService(
		users.NewUserRepository(db),
		users.NewPortalRepository(db),
		users.NewUserDataRepository(db),
		users.NewUserFactorRepository(db),
	)
}

func setupAPIRoutes(router fiber.Router, coordinator *auth.Coordinator, userService *users.UserService, cookieSecure bool) {
	authHandler := api.NewAuthHandler(coordinator, userService, cookieSecure)

	v1 := router.Group("/api/v1")
	v1.Post("/login", authHandler.PostLogin)
	v1.Post("/logout", authHandler.PostLogout)
}

func run(ctx *cli.Context) error {
	config, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}

	mustInitLogger(config.Debug || ctx.IsSet(debugFlag.Name))

	mailSender := mustInitMailSender(config.Mail)
	db := mustInitDatabase(config.MySQL)
	redisStorage := mustInitRedisStorage(config.Redis)
	cacheStorage := store.NewRedisStorage(redisStorage.Conn())

	// repositories
	var (
		userFactorRepo = users.NewUserFactorRepository(db)
		tokenRepo      = tokens.NewTokenRepository(db)
		authLogRepo    = audit.NewAuthLogRepository(db)
	)

	// services
	var (
		userService = newUserService(db)
		auditLog    = audit.NewLog(authLogRepo, nil)
		rateLimiter = ratelimit.NewLimiter(auditLog, config.Reader(), nil)
		tokenStore  = tokens.NewTokenStore(tokenRepo, config.Reader(), nil)
	)

	coordinator := auth.NewCoordinator(auth.Options{
		Config:           config.Reader(),
		RateLimiter:      rateLimiter,
		TokenStore:       tokenStore,
		AuditLog:         auditLog,
		Users:            userService,
		LoginMethods:     mustInitLoginMethods(config, userService),
		TwoFactorMethods: mustInitTwoFactorMethods(config, cacheStorage, userFactorRepo, mailSender),
	})

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(config.AllowOrigins, ", "),
		AllowHeaders: strings.Join([]string{
			"Origin", "Content-Type", "Accept", "Authorization",
			params.HeaderAuthorization,
			params.HeaderAuthorizationByToken,
			params.HeaderAuthorizationCode,
			params.HeaderAuthorizationMethod,
			params.HeaderCreateTokenSecret,
			params.HeaderPortal,
		}, ", "),
		AllowCredentials: len(config.AllowOrigins) > 0 && config.AllowOrigins[0] != "*",
	}))

	setupAPIRoutes(router, coordinator, userService, config.CookieSecure)

	healthCheckCtx, term := context.WithCancel(ctx.Context)
	done := make(chan struct{})
	go common.StartHealthCheckServer(healthCheckCtx, done, map[string]common.ReadinessCheck{
		"mysql": common.DatabaseCheck(db),
		"redis": common.RedisCheck(redisStorage.Conn()),
	})
	defer func() {
		term()
		<-done
	}()
	return router.Listen(config.ListenAddr)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
