package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/background"
	"github.com/BradenHooton/gatekeeper/internal/cache"
	"github.com/BradenHooton/gatekeeper/internal/config"
	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/BradenHooton/gatekeeper/internal/events"
	"github.com/BradenHooton/gatekeeper/internal/handlers"
	"github.com/BradenHooton/gatekeeper/internal/mq"
	"github.com/BradenHooton/gatekeeper/internal/repositories"
	"github.com/BradenHooton/gatekeeper/internal/routes"
	"github.com/BradenHooton/gatekeeper/internal/services"
	"github.com/BradenHooton/gatekeeper/internal/session"
	pkgauth "github.com/BradenHooton/gatekeeper/pkg/auth"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/BradenHooton/gatekeeper/pkg/ids"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the account API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		logger := pkglogger.New(cfg.Server.LogLevel)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runServer(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	redisClient, err := session.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	sessions := session.NewRedisStore(redisClient)

	signingKey, err := loadSigningKey(cfg, logger)
	if err != nil {
		return err
	}
	tokenManager := auth.NewTokenManager(signingKey, cfg.Auth.Issuer)

	hasher := pkgauth.NewArgon2Hasher(pkgauth.Argon2Params{
		Memory:      cfg.Auth.HasherMemory,
		Iterations:  cfg.Auth.HasherTime,
		Parallelism: pkgauth.DefaultParallelism,
		SaltLength:  pkgauth.DefaultSaltLength,
		KeyLength:   pkgauth.DefaultKeyLength,
	})

	idGen, err := ids.NewGenerator(cfg.Server.NodeID)
	if err != nil {
		return err
	}

	backend, err := mq.NewBackend(ctx, cfg.Events, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize event broker: %w", err)
	}
	defer backend.Close()
	publisher := events.NewPublisher(backend, cfg.Events.PublishTimeout, logger)

	auditLogger := pkglogger.NewAuditLogger(logger)
	var repo services.AccountRepository = repositories.NewAccountRepository(db)
	var profiles services.ProfileCache
	if cfg.Redis.ProfileCache {
		profiles = cache.NewProfileCache(redisClient, cfg.Redis.ProfileCacheTTL)
		repo = services.WithProfileEviction(repo, profiles, logger)
	}

	accountService := services.NewAccountService(repo, hasher, idGen, publisher, logger, auditLogger)
	authService := services.NewAuthService(repo, hasher, tokenManager, sessions, publisher, logger, auditLogger)
	userService := services.NewUserService(repo, hasher, idGen, publisher, profiles, logger, auditLogger)

	if cfg.Events.NotifierEnabled {
		emailService, err := services.NewEmailService(ctx, cfg.Email, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize email service: %w", err)
		}
		notifier := background.NewNotifier(backend, emailService, logger)
		notifier.Start(ctx)
		defer notifier.Stop()
	}

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(accountService, authService, ipConfig)
	userHandler := handlers.NewUserHandler(userService, ipConfig)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthChecker{
		"database": db,
		"redis":    sessions,
	}, logger)

	routeConfig := routes.Config{
		Env:            cfg.Server.Env,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		AuthRateLimit:  cfg.Server.AuthRateLimit,
	}
	router := routes.NewRouter(routeConfig, logger)
	routes.RegisterRoutes(router, routeConfig, authHandler, userHandler, healthHandler, tokenManager, sessions, userService, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// loadSigningKey reads the configured RSA key pair. Outside production a
// missing key path falls back to an ephemeral key.
func loadSigningKey(cfg *config.Config, logger *slog.Logger) (*rsa.PrivateKey, error) {
	if cfg.Auth.PrivateKeyPath != "" {
		return auth.LoadPrivateKey(cfg.Auth.PrivateKeyPath, cfg.Auth.PublicKeyPath)
	}
	logger.Warn("JWT_PRIVATE_KEY_PATH not set, using an ephemeral signing key")
	return auth.GenerateEphemeralKey()
}
