// Package auth provides authentication and authorization for the library.
//
// It supports two authentication modes:
//   - "none": no authentication, every request acts as the default admin
//   - "local": local user database with session cookies for the web UI and
//     bearer credentials for the API
//
// Bearer credentials are tried in order: a JWT access token issued by
// /api/token/ or the OAuth2 endpoint /o/token/, then a static API token.
// On /api/ the policy is authenticated-or-read-only: safe methods are public
// and writes need a user whose token carries the "write" scope.
//
// # Configuration
//
//	AUTH_MODE=local                # none | local
//	AUTH_SESSION_SECRET=<hex>      # generated if empty
//	AUTH_SESSION_LIFETIME=24h
//	JWT_SECRET=<secret>            # falls back to the session secret
//	JWT_ACCESS_LIFETIME=1h
//	JWT_REFRESH_LIFETIME=168h
//	GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET enable Google sign-in
//
// # Usage
//
//	service := auth.NewService(db, cfg.Auth)
//	issuer, _ := auth.NewTokenIssuer(cfg.JWT, clients.NewRepository(db), service)
//	mw := auth.NewMiddleware(service, sessions, issuer, cfg.Auth)
//	router.Use(mw.Handler())
//
// Extract the user in handlers:
//
//	userID := auth.GetUserID(c) // DefaultUserID when anonymous
package auth
