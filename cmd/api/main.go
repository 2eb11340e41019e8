package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	logCfg, err := utilities.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read log config: %v\n", err)
		os.Exit(1)
	}
	lg, err := utilities.Init(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}
	sugar.Infow("starting", "app", cfg.AppName, "storage", cfg.Storage, "debug", cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, tokens, closeStore := openStores(ctx, sugar, cfg)
	defer closeStore()

	signer, err := user.NewTokenSigner(cfg.AppKey, cfg.TokenIssuer)
	if err != nil {
		sugar.Fatalf("token signer: %v", err)
	}
	svc := user.NewUserService(users, tokens, signer, user.BcryptHasher{Cost: cfg.BcryptCost})
	handler := router.RegisterRoutes(sugar, user.NewHandler(svc, sugar, cfg.Debug), cfg.HTTPBasePath)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("listening", "addr", cfg.HTTPAddr, "base_path", cfg.HTTPBasePath)

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}

// openStores builds the user and token stores selected by STORAGE_DRIVER.
// The returned func releases the database connection, if any.
func openStores(ctx context.Context, sugar *zap.SugaredLogger, cfg *config.Config) (user.UserStore, user.TokenStore, func()) {
	if cfg.Storage == config.StorageMemory {
		sugar.Warn("using in-memory storage; data is lost on exit")
		return userrepo.NewMemoryUserRepo(), userrepo.NewMemoryTokenRepo(), func() {}
	}

	dbCfg, err := database.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("db config: %v", err)
	}
	sqlDB, err := database.Connect(ctx, dbCfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, sqlDB, dbCfg.Driver, sugar); err != nil {
			sqlDB.Close()
			sugar.Fatalf("db migrate: %v", err)
		}
	}

	// wrap with sqlx for convenience in repos
	sqlxDB := sqlx.NewDb(sqlDB, dbCfg.Driver)
	return userrepo.NewUserRepo(sqlxDB), userrepo.NewTokenRepo(sqlxDB), func() {
		if err := sqlxDB.Close(); err != nil {
			sugar.Warnf("db close: %v", err)
		}
	}
}
