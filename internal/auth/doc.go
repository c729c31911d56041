// Package auth is the call-through layer between the browser and the hosted
// identity provider.
//
// The provider verifies credentials, issues tokens and sends emails. This package
// validates the submitted fields, forwards them, normalizes every outcome into a
// Result and keeps a mirror of the issued user record in the scs session. The
// access and refresh tokens are sealed before they are stored.
//
// # Configuration
//
//	IDENTITY_URL=https://<project>.supabase.co/auth/v1
//	IDENTITY_API_KEY=<anon key>
//	SITE_URL=https://app.example.com     # Callback links point here
//	AUTH_SESSION_SECRET=<hex-32-bytes>   # Auto-generated if empty
//	AUTH_SESSION_LIFETIME=24h
//	AUTH_MIN_PASSWORD_LENGTH=6
//	AUTH_REFRESH_MARGIN=1m
//
// # Usage
//
//	sessions, _ := auth.NewSessionManager(sqlDB, cfg.Auth, sealer)
//	service := auth.NewService(client, sessions, cfg.Identity, cfg.Auth)
//	router.Use(sessions.SessionLoadSave(), auth.NewMiddleware(service).Handler())
//
// Extract the mirrored user in handlers:
//
//	user := auth.GetUser(c) // nil when signed out
package auth
