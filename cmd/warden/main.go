package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"

	warden "github.com/goliatone/go-warden"
	smtpnotifier "github.com/goliatone/go-warden/notifier/smtp"
)

type config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	SecretKey   string `env:"SECRET_KEY,required"`
	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"file:warden.db?cache=shared"`

	SMTPHost     string `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	EmailUser    string `env:"EMAIL_SERVICE_USER,required"`
	EmailPass    string `env:"EMAIL_SERVICE_PASSWORD,required"`
	EmailFrom    string `env:"EMAIL_FROM"`
	TokenIssuer  string `env:"TOKEN_ISSUER" envDefault:"warden"`
}

// zapLogger adapts a sugared zap logger to the warden.Logger interface.
type zapLogger struct {
	log *zap.SugaredLogger
}

func (z zapLogger) Debug(msg string, args ...any) { z.log.Debugw(msg, args...) }
func (z zapLogger) Info(msg string, args ...any)  { z.log.Infow(msg, args...) }
func (z zapLogger) Error(msg string, args ...any) { z.log.Errorw(msg, args...) }

func main() {
	zl, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer zl.Sync()

	logger := zapLogger{log: zl.Sugar()}

	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if cfg.EmailFrom == "" {
		cfg.EmailFrom = cfg.EmailUser
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DatabaseDSN)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer sqldb.Close()

	db := bun.NewDB(sqldb, sqlitedialect.New())

	repo := warden.NewRepositoryManager(db)
	if err := repo.Migrate(ctx); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	notifier := smtpnotifier.New(smtpnotifier.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.EmailUser,
		Password: cfg.EmailPass,
		From:     cfg.EmailFrom,
	})

	tokens := warden.NewTokenService([]byte(cfg.SecretKey), cfg.TokenIssuer).
		WithLogger(logger)

	auth := warden.NewAuthenticator(repo, tokens).WithLogger(logger)
	registrar := warden.NewRegistrar(repo, notifier).WithLogger(logger)
	tenants := warden.NewTenantManager(repo).WithLogger(logger)

	server := warden.NewServer(auth, registrar, tenants).WithLogger(logger)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := server.Shutdown(); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("listening", "addr", cfg.Addr)
	if err := server.Listen(cfg.Addr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
