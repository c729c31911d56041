package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// Queue names
const (
	QueueCleanupAuditEvents = "cleanup_audit_events"
	QueuePruneUserMirror    = "prune_user_mirror"
)

var errNotConfigured = errors.New("not configured")

// AuditEventCleaner deletes audit events older than a retention window.
type AuditEventCleaner interface {
	DeleteOldEvents(retention time.Duration) (int64, error)
}

// UserMirrorPruner deletes mirrored users not seen within a retention window.
type UserMirrorPruner interface {
	DeleteStaleUsers(retention time.Duration) (int64, error)
}

// SystemLogger records maintenance outcomes in the audit log.
type SystemLogger interface {
	LogSystem(action, description string, err error)
}

// CleanupAuditEventsTask removes audit events older than RetentionDays.
type CleanupAuditEventsTask struct {
	RetentionDays int `json:"retention_days"`
}

// Config returns the queue configuration for audit cleanup tasks.
func (t CleanupAuditEventsTask) Config() backlite.QueueConfig {
	return maintenanceQueueConfig(QueueCleanupAuditEvents)
}

// PruneUserMirrorTask removes mirrored users whose last visit is older than RetentionDays.
type PruneUserMirrorTask struct {
	RetentionDays int `json:"retention_days"`
}

// Config returns the queue configuration for mirror pruning tasks.
func (t PruneUserMirrorTask) Config() backlite.QueueConfig {
	return maintenanceQueueConfig(QueuePruneUserMirror)
}

func maintenanceQueueConfig(name string) backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        name,
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// Maintenance builds the maintenance queues and the tasks the scheduler enqueues.
type Maintenance struct {
	cfg     Config
	cleaner AuditEventCleaner
	pruner  UserMirrorPruner
	system  SystemLogger
}

// NewMaintenance wires the maintenance processors. system may be nil.
func NewMaintenance(cfg Config, cleaner AuditEventCleaner, pruner UserMirrorPruner, system SystemLogger) *Maintenance {
	return &Maintenance{cfg: cfg, cleaner: cleaner, pruner: pruner, system: system}
}

// Queues returns the backlite queues to register before the client starts.
func (m *Maintenance) Queues() []backlite.Queue {
	return []backlite.Queue{
		backlite.NewQueue(m.CleanupAuditEvents),
		backlite.NewQueue(m.PruneUserMirror),
	}
}

// Tasks returns one task per queue using the configured retention.
func (m *Maintenance) Tasks() []backlite.Task {
	return []backlite.Task{
		CleanupAuditEventsTask{RetentionDays: m.cfg.AuditRetentionDays},
		PruneUserMirrorTask{RetentionDays: m.cfg.MirrorRetentionDays},
	}
}

// CleanupAuditEvents processes a CleanupAuditEventsTask.
func (m *Maintenance) CleanupAuditEvents(ctx context.Context, task CleanupAuditEventsTask) error {
	if m.cleaner == nil {
		return fmt.Errorf("audit event cleaner %w", errNotConfigured)
	}

	days := retentionDaysFor(task.RetentionDays, m.cfg.AuditRetentionDays)
	deleted, err := m.cleaner.DeleteOldEvents(days.duration())
	return m.report(QueueCleanupAuditEvents, fmt.Sprintf("deleted %d audit events older than %d days", deleted, days), err)
}

// PruneUserMirror processes a PruneUserMirrorTask.
func (m *Maintenance) PruneUserMirror(ctx context.Context, task PruneUserMirrorTask) error {
	if m.pruner == nil {
		return fmt.Errorf("user mirror pruner %w", errNotConfigured)
	}

	days := retentionDaysFor(task.RetentionDays, m.cfg.MirrorRetentionDays)
	deleted, err := m.pruner.DeleteStaleUsers(days.duration())
	return m.report(QueuePruneUserMirror, fmt.Sprintf("deleted %d mirrored users not seen for %d days", deleted, days), err)
}

func (m *Maintenance) report(queue, description string, err error) error {
	if m.system != nil {
		m.system.LogSystem(queue, description, err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", queue, err)
	}
	log.Printf("[TASK] %s: %s", queue, description)
	return nil
}

type retentionDays int

func (d retentionDays) duration() time.Duration {
	return time.Duration(d) * 24 * time.Hour
}

// retentionDaysFor picks the task value, then the configured default, then 30.
func retentionDaysFor(requested, fallback int) retentionDays {
	switch {
	case requested > 0:
		return retentionDays(requested)
	case fallback > 0:
		return retentionDays(fallback)
	}
	return 30
}
