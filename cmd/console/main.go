package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/yardwatch/internal/console/handler"
	"github.com/xela07ax/yardwatch/internal/console/server"
	"github.com/xela07ax/yardwatch/internal/console/service"
	"github.com/xela07ax/yardwatch/internal/domain"
	"github.com/xela07ax/yardwatch/internal/infra"
	"github.com/xela07ax/yardwatch/internal/infra/auth"
	"github.com/xela07ax/yardwatch/internal/repository/postgres"
	"github.com/xela07ax/yardwatch/internal/repository/sqlite"
)

// repository — все, что нужно консоли от БД.
type repository interface {
	service.AuthProvider
	service.OverrideRepository
	service.AlertReader
	CreateUser(ctx context.Context, u *domain.User) error
	Close()
}

func main() {
	var (
		newUser  = flag.String("add-user", "", "create an operator and exit")
		password = flag.String("password", "", "password for -add-user")
		scopes   = flag.String("scopes", domain.ScopeOverrides+","+domain.ScopeAlerts, "comma separated scopes for -add-user")
	)
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Ресурсы: консоль без БД смысла не имеет
	repo, err := openRepository(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("database unreachable", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer repo.Close()

	if *newUser != "" {
		if err := addUser(appCtx, repo, cfg.Auth.BcryptCost, *newUser, *password, *scopes); err != nil {
			logger.Fatal("failed to create user", zap.String("username", *newUser), zap.Error(err))
		}
		logger.Info("user created", zap.String("username", *newUser))
		return
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	} else {
		logger.Warn("redis is not configured, data plane will see override changes only after restart")
	}

	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("failed to load signing key", zap.Error(err))
	}

	// 2. Слои (Dependency Injection)
	authSvc := service.NewAuthService(repo, privateKey, cfg.Auth.TokenTTL)
	srv := server.NewConsoleServer(logger,
		authSvc,
		handler.NewAuthHandler(authSvc, logger),
		handler.NewOverrideHandler(service.NewOverrideService(repo, rdb, logger), logger),
		handler.NewAlertHandler(service.NewAlertService(repo), logger),
	)

	httpSrv := &http.Server{
		Addr:              cfg.Console.Addr(),
		Handler:           srv,
		ReadHeaderTimeout: cfg.Console.ReadTimeout,
		WriteTimeout:      10 * time.Second,
	}

	go func() {
		logger.Info("console API started", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-appCtx.Done()
	logger.Info("console API stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Console.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("console shutdown failed", zap.Error(err))
	}
	logger.Info("console API exited properly")
}

func openRepository(ctx context.Context, cfg infra.DatabaseConfig) (repository, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.Driver {
	case infra.DriverPostgres:
		repo, err := postgres.NewRepo(ctx, postgres.PoolConfig{URL: cfg.URL, MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
		if err != nil {
			return nil, err
		}
		if err := repo.Ping(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		if cfg.Migrate {
			if err := repo.Migrate(); err != nil {
				repo.Close()
				return nil, err
			}
		}
		return repo, nil
	case infra.DriverSQLite:
		repo, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, errors.New("console requires database.driver postgres or sqlite")
	}
}

var (
	_ repository = (*postgres.Repo)(nil)
	_ repository = (*sqlite.Repo)(nil)
)

// addUser заводит оператора: console -add-user ana -password ... -scopes overrides.write,alerts.read
func addUser(ctx context.Context, repo repository, cost int, username, password, scopes string) error {
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         "operator",
		Scopes:       make(map[string]bool),
		CreatedAt:    time.Now().UTC(),
	}
	for _, s := range strings.Split(scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			u.Scopes[s] = true
		}
	}
	if u.Scopes[domain.ScopeAdmin] {
		u.Role = domain.ScopeAdmin
	}
	return repo.CreateUser(ctx, u)
}
