package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/McGuireTechnology/truledgr-auth/internal/auth"
	"github.com/McGuireTechnology/truledgr-auth/internal/background"
	"github.com/McGuireTechnology/truledgr-auth/internal/config"
	"github.com/McGuireTechnology/truledgr-auth/internal/database"
	"github.com/McGuireTechnology/truledgr-auth/internal/handlers"
	"github.com/McGuireTechnology/truledgr-auth/internal/metrics"
	middlewareCustom "github.com/McGuireTechnology/truledgr-auth/internal/middleware"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/McGuireTechnology/truledgr-auth/internal/oauth"
	"github.com/McGuireTechnology/truledgr-auth/internal/repositories"
	"github.com/McGuireTechnology/truledgr-auth/internal/routes"
	"github.com/McGuireTechnology/truledgr-auth/internal/services"
	"github.com/McGuireTechnology/truledgr-auth/migrations"
	pkgauth "github.com/McGuireTechnology/truledgr-auth/pkg/auth"
	pkghttp "github.com/McGuireTechnology/truledgr-auth/pkg/http"
	pkglogger "github.com/McGuireTechnology/truledgr-auth/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Migrations run through the database/sql adapter over the same pool.
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	if err := migrations.Migrate(sqlDB); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	metrics.Init()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	lockoutRepo := repositories.NewLockoutRepository(db)
	rbacRepo := repositories.NewRBACRepository(db)
	oauthRepo := repositories.NewOAuthRepository(db)
	mfaRepo := repositories.NewMFARepository(db)
	resetRepo := repositories.NewPasswordResetRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)

	// Crypto building blocks
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	secretBox, err := auth.NewSecretBox(cfg.MFA.EncryptionKey)
	if err != nil {
		logger.Error("failed to initialize MFA encryption", slog.Any("error", err))
		os.Exit(1)
	}
	totpManager := auth.NewTOTPManager(secretBox, cfg.MFA.Issuer)
	timing := auth.NewTimingEqualizer(auth.TimingConfig{
		BaseDelayMs: cfg.Auth.TimingDelayBaseMs,
		JitterMs:    cfg.Auth.TimingDelayJitterMs,
	})

	auditLogger := pkglogger.NewAuditLogger(logger)

	emailService, err := services.NewAWSSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Email.ResetURLBase,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// OAuth providers; unconfigured ones are simply not registered.
	var providers []oauth.Provider
	if cfg.OAuth.Google.ClientID != "" {
		providers = append(providers, oauth.NewGoogleProvider(
			cfg.OAuth.Google.ClientID,
			cfg.OAuth.Google.ClientSecret,
			cfg.OAuth.BaseRedirectURL+"/auth/oauth/google/callback",
			cfg.OAuth.ExchangeTimeout,
		))
	}
	if cfg.OAuth.GitHub.ClientID != "" {
		providers = append(providers, oauth.NewGitHubProvider(
			cfg.OAuth.GitHub.ClientID,
			cfg.OAuth.GitHub.ClientSecret,
			cfg.OAuth.BaseRedirectURL+"/auth/oauth/github/callback",
			cfg.OAuth.ExchangeTimeout,
		))
	}
	providerRegistry := oauth.NewRegistry(providers...)

	// Services
	securityService := services.NewSecurityService(eventRepo, auditLogger, logger)
	sessionService := services.NewSessionService(sessionRepo, tokenManager, securityService, cfg.Auth, logger)
	lockoutService := services.NewLockoutService(lockoutRepo, userRepo, securityService, cfg.Lockout, logger)
	mfaService := services.NewMFAService(mfaRepo, totpManager, cfg.MFA)
	rbacService := services.NewRBACService(rbacRepo, logger)
	resetService := services.NewPasswordResetService(resetRepo, userRepo, sessionService, emailService, securityService, cfg.Email, logger)
	oauthService := services.NewOAuthService(providerRegistry, oauthRepo, userRepo, sessionService, lockoutService, securityService, secretBox, cfg.OAuth, logger)
	authService := services.NewAuthService(userRepo, sessionService, lockoutService, mfaService, securityService, timing, logger)

	// Handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, sessionService, resetService, ipConfig)
	mfaHandler := handlers.NewMFAHandler(mfaService, userRepo)
	oauthHandler := handlers.NewOAuthHandler(oauthService, ipConfig)
	authzHandler := handlers.NewAuthzHandler(rbacService)
	securityHandler := handlers.NewSecurityHandler(securityService, lockoutService, ipConfig)

	// Bootstrap the first administrator if configured
	bootstrapCtx, cancelBootstrap := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdmin(bootstrapCtx, userRepo, rbacRepo, logger); err != nil {
		logger.Error("failed to bootstrap admin", slog.Any("error", err))
	}
	cancelBootstrap()

	// Router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.NewCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(metrics.Instrument)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	routes.RegisterRoutes(router, authHandler, mfaHandler, oauthHandler, authzHandler, securityHandler, tokenManager, sessionService, rbacService)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Background sweeper
	sweeper := background.NewSweeper(
		sessionRepo, lockoutRepo, oauthRepo, resetRepo, mfaRepo,
		logger,
		cfg.Auth.CleanupInterval,
		cfg.Auth.SessionIdleExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go sweeper.Start(sweepCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cancelSweep()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// adminGrants are the permissions the bootstrap administrator role carries.
var adminGrants = []struct {
	resource, action, description string
}{
	{"role", "manage", "Create, modify and assign roles"},
	{"security", "read", "Read the audit trail and lockout list"},
	{"security", "manage", "Release account lockouts"},
}

// ensureAdmin provisions the first administrator account and the admin role
// when ADMIN_EMAIL and ADMIN_PASSWORD are set. Reruns are no-ops.
func ensureAdmin(ctx context.Context, userRepo *repositories.UserRepository, rbacRepo *repositories.RBACRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin bootstrap")
		return nil
	}

	admin, err := userRepo.GetByEmail(ctx, adminEmail)
	if errors.Is(err, models.ErrNotFound) {
		hash, herr := pkgauth.HashPassword(adminPassword)
		if herr != nil {
			return fmt.Errorf("failed to hash admin password: %w", herr)
		}
		admin, err = userRepo.Create(ctx, &models.User{
			Username:     "admin",
			Email:        adminEmail,
			PasswordHash: &hash,
			IsActive:     true,
			IsVerified:   true,
		})
		if err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
		logger.Info("admin user created")
	} else if err != nil {
		return fmt.Errorf("failed to check for admin user: %w", err)
	}

	role, err := rbacRepo.GetRoleByName(ctx, "admin")
	if errors.Is(err, models.ErrNotFound) {
		role, err = rbacRepo.CreateRole(ctx, &models.Role{
			Name:        "admin",
			Description: "Full administrative access",
			IsActive:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create admin role: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to look up admin role: %w", err)
	}

	for _, g := range adminGrants {
		perm, err := rbacRepo.EnsurePermission(ctx, g.resource, g.action, g.description)
		if err != nil {
			return fmt.Errorf("failed to ensure permission %s:%s: %w", g.resource, g.action, err)
		}
		if err := rbacRepo.GrantPermission(ctx, role.ID, perm.ID); err != nil {
			return fmt.Errorf("failed to grant %s:%s: %w", g.resource, g.action, err)
		}
	}

	if err := rbacRepo.AssignRole(ctx, admin.ID, role.ID); err != nil {
		return fmt.Errorf("failed to assign admin role: %w", err)
	}

	logger.Info("admin bootstrap complete", slog.String("email", pkglogger.SanitizedEmail(adminEmail)))
	return nil
}
