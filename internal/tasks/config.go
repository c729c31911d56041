package tasks

import (
	"time"

	"github.com/mrlokans/gatekeeper/internal/config"
)

// Config holds configuration for the task queue system.
type Config struct {
	// Workers is the number of concurrent task workers. Default: 1
	Workers int

	// ReleaseAfter is when stuck tasks are released back to queue. Default: 15m
	ReleaseAfter time.Duration

	// CleanupInterval is how often backlite purges finished tasks. Default: 1h
	CleanupInterval time.Duration

	// AuditRetentionDays and MirrorRetentionDays are the defaults used when a
	// task is enqueued without an explicit retention.
	AuditRetentionDays  int
	MirrorRetentionDays int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:             1,
		ReleaseAfter:        15 * time.Minute,
		CleanupInterval:     time.Hour,
		AuditRetentionDays:  config.DefaultAuditRetentionDays,
		MirrorRetentionDays: config.DefaultMirrorRetentionDays,
	}
}

// ConfigFrom builds the queue configuration from the application config,
// falling back to defaults for unset values.
func ConfigFrom(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg.Tasks.Workers > 0 {
		out.Workers = cfg.Tasks.Workers
	}
	if cfg.Tasks.ReleaseAfter > 0 {
		out.ReleaseAfter = cfg.Tasks.ReleaseAfter
	}
	if cfg.Tasks.CleanupInterval > 0 {
		out.CleanupInterval = cfg.Tasks.CleanupInterval
	}
	if cfg.Audit.RetentionDays > 0 {
		out.AuditRetentionDays = cfg.Audit.RetentionDays
	}
	if cfg.Mirror.RetentionDays > 0 {
		out.MirrorRetentionDays = cfg.Mirror.RetentionDays
	}
	return out
}
