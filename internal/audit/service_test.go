package audit

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	auditRepo "github.com/mrlokans/gatekeeper/internal/database/audit"
	"github.com/mrlokans/gatekeeper/internal/entities"
)

func setupTestService(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&entities.AuditEvent{})
	require.NoError(t, err)

	repo := auditRepo.NewRepository(db)
	svc := NewService(repo)

	return svc, db
}

func TestService_Log(t *testing.T) {
	svc, db := setupTestService(t)

	event := &entities.AuditEvent{
		EventType:   entities.AuditEventAuth,
		Action:      entities.AuditActionSignIn,
		Description: "Test sign in",
		Status:      entities.AuditStatusSuccess,
	}

	err := svc.Log(event)
	require.NoError(t, err)

	var saved entities.AuditEvent
	err = db.First(&saved, event.ID).Error
	require.NoError(t, err)
	assert.Equal(t, entities.AuditActionSignIn, saved.Action)
}

func TestService_LogAuth(t *testing.T) {
	svc, db := setupTestService(t)

	t.Run("successful attempt", func(t *testing.T) {
		svc.LogAuth(AuthEntry{
			Action:     entities.AuditActionSignIn,
			ExternalID: "ext-1",
			Email:      "ada@example.com",
			IPAddress:  "192.168.1.1",
			UserAgent:  "Mozilla/5.0",
			RequestID:  "req-1",
		})
		svc.Wait()

		var event entities.AuditEvent
		err := db.Where("request_id = ?", "req-1").First(&event).Error
		require.NoError(t, err)
		assert.Equal(t, entities.AuditEventAuth, event.EventType)
		assert.Equal(t, entities.AuditStatusSuccess, event.Status)
		assert.Equal(t, "ext-1", event.ExternalID)
		assert.Equal(t, "192.168.1.1", event.IPAddress)
		assert.Empty(t, event.ErrorMsg)
	})

	t.Run("failed attempt", func(t *testing.T) {
		svc.LogAuth(AuthEntry{
			Action:    entities.AuditActionMagicLink,
			Email:     "bob@example.com",
			RequestID: "req-2",
			Err:       errors.New("email rate limit exceeded"),
		})
		svc.Wait()

		var event entities.AuditEvent
		err := db.Where("request_id = ?", "req-2").First(&event).Error
		require.NoError(t, err)
		assert.Equal(t, entities.AuditStatusFailed, event.Status)
		assert.Equal(t, "email rate limit exceeded", event.ErrorMsg)
	})

	t.Run("long user agent is truncated", func(t *testing.T) {
		svc.LogAuth(AuthEntry{
			Action:    entities.AuditActionSignOut,
			UserAgent: strings.Repeat("a", 800),
			RequestID: "req-3",
		})
		svc.Wait()

		var event entities.AuditEvent
		err := db.Where("request_id = ?", "req-3").First(&event).Error
		require.NoError(t, err)
		assert.Len(t, event.UserAgent, maxFieldLength)
		assert.True(t, strings.HasSuffix(event.UserAgent, "..."))
	})
}

func TestService_LogSystem(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogSystem("cleanup_audit_events", "Deleted 3 events", nil)
	svc.Wait()

	var event entities.AuditEvent
	err := db.Where("action = ?", "cleanup_audit_events").First(&event).Error
	require.NoError(t, err)
	assert.Equal(t, entities.AuditEventSystem, event.EventType)
	assert.Equal(t, "Deleted 3 events", event.Description)
}

func TestService_DeleteOldEvents(t *testing.T) {
	svc, db := setupTestService(t)

	oldEvent := &entities.AuditEvent{
		EventType: entities.AuditEventAuth,
		Action:    entities.AuditActionSignIn,
		Status:    entities.AuditStatusSuccess,
		CreatedAt: time.Now().Add(-60 * 24 * time.Hour),
	}
	require.NoError(t, svc.Log(oldEvent))

	newEvent := &entities.AuditEvent{
		EventType: entities.AuditEventAuth,
		Action:    entities.AuditActionSignIn,
		Status:    entities.AuditStatusSuccess,
	}
	require.NoError(t, svc.Log(newEvent))

	deleted, err := svc.DeleteOldEvents(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var count int64
	db.Model(&entities.AuditEvent{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))

	// "é" is two bytes; a cut through it falls back to the rune start.
	got := truncate("abcdeféghijk", 10)
	assert.Equal(t, "abcdef...", got)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 10)
}
