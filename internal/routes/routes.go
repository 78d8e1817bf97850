package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/McGuireTechnology/truledgr-auth/internal/auth"
	"github.com/McGuireTechnology/truledgr-auth/internal/handlers"
	"github.com/McGuireTechnology/truledgr-auth/internal/metrics"
	"github.com/McGuireTechnology/truledgr-auth/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	mfaHandler *handlers.MFAHandler,
	oauthHandler *handlers.OAuthHandler,
	authzHandler *handlers.AuthzHandler,
	securityHandler *handlers.SecurityHandler,
	tokenManager *auth.TokenManager,
	sessions auth.SessionChecker,
	authorizer auth.Authorizer,
) {
	loginLimit := middleware.RateLimitByIP(middleware.LoginRateLimit())
	resetLimit := middleware.RateLimitByIP(middleware.ResetRateLimit())

	router.Method("GET", "/metrics", metrics.Handler())

	// Public routes - no authentication required
	router.With(loginLimit).Post("/auth/register", authHandler.Register)
	router.With(loginLimit).Post("/auth/login", authHandler.Login)
	router.With(loginLimit).Post("/auth/mfa/verify", authHandler.LoginMFA)
	router.With(loginLimit).Post("/auth/refresh", authHandler.Refresh)
	router.With(resetLimit).Post("/auth/password-reset", authHandler.RequestPasswordReset)
	router.With(resetLimit).Post("/auth/password-reset/confirm", authHandler.ConfirmPasswordReset)

	// Federation endpoints are public up to the callback.
	router.Get("/auth/oauth/providers", oauthHandler.ListProviders)
	router.With(loginLimit).Get("/auth/oauth/{provider}/redirect", oauthHandler.Begin)
	router.With(loginLimit).Get("/auth/oauth/{provider}/callback", oauthHandler.Callback)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager, sessions))

		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/logout-all", authHandler.LogoutAll)
		r.Post("/auth/password", authHandler.ChangePassword)
		r.Get("/auth/sessions", authHandler.ListSessions)
		r.Delete("/auth/sessions/{sessionID}", authHandler.RevokeSession)

		r.Get("/auth/mfa", mfaHandler.Status)
		r.Post("/auth/mfa/setup", mfaHandler.Setup)
		r.Post("/auth/mfa/enable", mfaHandler.Enable)
		r.Post("/auth/mfa/disable", mfaHandler.Disable)

		r.Get("/authz/check", authzHandler.Check)
		r.Post("/authz/check", authzHandler.Check)
		r.Get("/me/permissions", authzHandler.MyPermissions)

		// Role administration
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePermission(authorizer, "role", "manage"))

			r.Post("/authorization/roles", authzHandler.CreateRole)
			r.Get("/authorization/roles", authzHandler.ListRoles)
			r.Get("/authorization/roles/{roleID}", authzHandler.GetRole)
			r.Delete("/authorization/roles/{roleID}", authzHandler.DeleteRole)
			r.Post("/authorization/roles/{roleID}/permissions", authzHandler.GrantPermission)
			r.Delete("/authorization/roles/{roleID}/permissions/{permissionID}", authzHandler.RevokePermission)
			r.Post("/authorization/roles/{roleID}/assignments", authzHandler.AssignRole)
			r.Get("/authorization/users/{userID}/roles", authzHandler.ListUserRoles)
			r.Delete("/authorization/users/{userID}/roles/{roleID}", authzHandler.RemoveRole)
		})

		// Audit trail, read-only
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePermission(authorizer, "security", "read"))

			r.Get("/security/events", securityHandler.ListEvents)
			r.Get("/security/metrics", securityHandler.Metrics)
			r.Get("/security/lockouts", securityHandler.ListLockouts)
		})

		// Lockout administration
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePermission(authorizer, "security", "manage"))

			r.Post("/security/lockouts/{lockoutID}/unlock", securityHandler.Unlock)
		})
	})
}
