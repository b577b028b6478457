package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"linkshorty/internal/auth"
	"linkshorty/internal/config"
	apphttp "linkshorty/internal/http"
	"linkshorty/internal/logging"
	"linkshorty/internal/repository/sqlite"
	"linkshorty/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, logger, db, db.Close)
	stop()
	os.Exit(code)
}

// run serves the API on cfg.Addr() until ctx is done, then stops the HTTP
// server before calling closeDB. It returns the process exit code.
func run(ctx context.Context, cfg config.Config, logger *logrus.Logger, db *sql.DB, closeDB func() error) int {
	userRepo := sqlite.NewUserRepository(db)
	if err := userRepo.Init(ctx); err != nil {
		logger.Errorf("init user repository: %v", err)
		_ = closeDB()
		return 1
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret)
	if tokens.Insecure() {
		logger.Warn("JWT_SECRET is not set; signing tokens with the built-in development secret")
	}

	userService := service.NewUserService(userRepo, auth.NewBcryptHasher(auth.DefaultCost), tokens)
	guard := auth.NewGuard(tokens, userRepo)

	if !cfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	handler := apphttp.NewHandler(userService, guard, logger, cfg.Debug())
	handler.RegisterRoutes(router)

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		logger.Errorf("listen on %s: %v", cfg.Addr(), err)
		_ = closeDB()
		return 1
	}

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", ln.Addr())
		logger.Infof("auth endpoints: POST /api/auth/register, POST /api/auth/login, GET /api/auth/profile")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-serveErr:
		logger.Errorf("http server: %v", err)
		_ = closeDB()
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	if err := closeDB(); err != nil {
		logger.Errorf("close database: %v", err)
		return 1
	}
	logger.Info("database connection closed")

	logger.Info("bye")
	return 0
}
