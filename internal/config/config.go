package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		UI
		Identity
		Auth
		Audit
		Mirror
		Tasks
		Maintenance
		Metrics
	}

	HTTP struct {
		Port       int32
		Host       string
		HSTSMaxAge int // Seconds; 0 leaves Strict-Transport-Security off
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	UI struct {
		TemplatesPath string
		StaticPath    string
	}
	// Identity describes the hosted identity provider all credential work is delegated to.
	Identity struct {
		URL     string // Auth API root, e.g. https://<project>.supabase.co/auth/v1
		APIKey  string // Public (anon) API key sent as the apikey header
		SiteURL string // Public origin of this app, used for callback redirects
		Timeout time.Duration
	}
	Auth struct {
		SessionSecret     string
		SessionLifetime   time.Duration
		SecureCookies     bool // Set to false for local dev without HTTPS
		MinPasswordLength int
		RefreshMargin     time.Duration // Refresh provider tokens expiring within this window
		AdminEmails       []string      // Accounts allowed to trigger maintenance tasks
	}
	Audit struct {
		RetentionDays int // Days to keep audit events (default: 30)
	}
	Mirror struct {
		RetentionDays int // Days to keep mirrored users that have not been seen (default: 90)
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Maintenance struct {
		Schedule string // Cron format: "0 3 * * *" = daily at 03:00
	}
	Metrics struct {
		Enabled bool
	}
)

// CallbackURL returns the absolute callback URL the provider redirects to after
// verifying an emailed link.
func (i Identity) CallbackURL() string {
	return strings.TrimRight(i.SiteURL, "/") + "/auth/callback"
}

// ResetCallbackURL returns the callback URL used by password recovery emails.
func (i Identity) ResetCallbackURL() string {
	return i.CallbackURL() + "?reset=true"
}

// IsConfigured reports whether a provider URL and API key have been set.
func (i Identity) IsConfigured() bool {
	return i.URL != "" && i.APIKey != ""
}

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("hsts_max_age", 0)
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("templates_path", "./templates")
	v.SetDefault("static_path", "./static")

	// Identity provider defaults
	v.SetDefault("identity_url", "")
	v.SetDefault("identity_api_key", "")
	v.SetDefault("site_url", DefaultSiteURL)
	v.SetDefault("identity_timeout", "10s")

	// Auth defaults
	v.SetDefault("auth_session_secret", "")      // Auto-generated if empty
	v.SetDefault("auth_session_lifetime", "24h") // 24 hours
	v.SetDefault("auth_secure_cookies", true)    // HTTPS-only cookies
	v.SetDefault("auth_min_password_length", DefaultMinPasswordLength)
	v.SetDefault("auth_refresh_margin", "1m")

	v.SetDefault("auth_admin_emails", "")
	v.SetDefault("audit_retention_days", DefaultAuditRetentionDays)
	v.SetDefault("mirror_retention_days", DefaultMirrorRetentionDays)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 1)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("maintenance_schedule", "0 3 * * *")

	v.SetDefault("metrics_enabled", true)

	return &Config{
		HTTP: HTTP{
			Port:       v.GetInt32("PORT"),
			Host:       v.GetString("HOST"),
			HSTSMaxAge: v.GetInt("HSTS_MAX_AGE"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		UI: UI{
			TemplatesPath: v.GetString("TEMPLATES_PATH"),
			StaticPath:    v.GetString("STATIC_PATH"),
		},
		Identity: Identity{
			URL:     strings.TrimRight(v.GetString("IDENTITY_URL"), "/"),
			APIKey:  v.GetString("IDENTITY_API_KEY"),
			SiteURL: v.GetString("SITE_URL"),
			Timeout: v.GetDuration("IDENTITY_TIMEOUT"),
		},
		Auth: Auth{
			SessionSecret:     v.GetString("AUTH_SESSION_SECRET"),
			SessionLifetime:   v.GetDuration("AUTH_SESSION_LIFETIME"),
			SecureCookies:     v.GetBool("AUTH_SECURE_COOKIES"),
			MinPasswordLength: v.GetInt("AUTH_MIN_PASSWORD_LENGTH"),
			RefreshMargin:     v.GetDuration("AUTH_REFRESH_MARGIN"),
			AdminEmails:       parseList(v.GetString("AUTH_ADMIN_EMAILS")),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Mirror: Mirror{
			RetentionDays: v.GetInt("MIRROR_RETENTION_DAYS"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Maintenance: Maintenance{
			Schedule: v.GetString("MAINTENANCE_SCHEDULE"),
		},
		Metrics: Metrics{
			Enabled: v.GetBool("METRICS_ENABLED"),
		},
	}
}

// IsAdmin reports whether email is listed in AdminEmails.
func (a Auth) IsAdmin(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, admin := range a.AdminEmails {
		if admin == email {
			return true
		}
	}
	return false
}

// parseList splits a comma-separated env value into lower-cased entries.
func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
