package config

// Default paths and provider settings
const (
	// DefaultDatabasePath is the default path for the application database
	// (user mirror, audit events and sessions).
	DefaultDatabasePath = "./gatekeeper.db"

	// DefaultSiteURL is the public origin used to build provider callback redirects.
	DefaultSiteURL = "http://localhost:8188"

	// DefaultMinPasswordLength matches the hosted provider's default password policy.
	DefaultMinPasswordLength = 6

	// Retention defaults for the maintenance tasks.
	DefaultAuditRetentionDays  = 30
	DefaultMirrorRetentionDays = 90
)
