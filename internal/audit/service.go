package audit

import (
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mrlokans/gatekeeper/internal/database/audit"
	"github.com/mrlokans/gatekeeper/internal/entities"
)

const maxFieldLength = 500

// Service provides high-level audit logging functionality.
type Service struct {
	repo    *audit.Repository
	pending sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// AuthEntry describes one authentication attempt.
type AuthEntry struct {
	Action      string
	ExternalID  string
	Email       string
	Description string
	IPAddress   string
	UserAgent   string
	RequestID   string
	Err         error
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.LogEvent(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.repo.LogEvent(event); err != nil {
			log.Printf("[AUDIT] Failed to log audit event %s: %v", event.Action, err)
		}
	}()
}

// Wait blocks until all background writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// LogAuth records an authentication event.
func (s *Service) LogAuth(entry AuthEntry) {
	event := &entities.AuditEvent{
		ExternalID:  entry.ExternalID,
		Email:       entry.Email,
		EventType:   entities.AuditEventAuth,
		Action:      entry.Action,
		Description: truncate(entry.Description, maxFieldLength),
		IPAddress:   entry.IPAddress,
		UserAgent:   truncate(entry.UserAgent, maxFieldLength),
		RequestID:   entry.RequestID,
		Status:      entities.AuditStatusSuccess,
	}

	if entry.Err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(entry.Err.Error(), maxFieldLength)
	}

	s.LogAsync(event)
}

// LogSystem records a maintenance event.
func (s *Service) LogSystem(action, description string, err error) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventSystem,
		Action:      action,
		Description: truncate(description, maxFieldLength),
		Status:      entities.AuditStatusSuccess,
	}

	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), maxFieldLength)
	}

	s.LogAsync(event)
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(filter audit.Filter, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(filter, limit, offset)
}

// GetEvent retrieves a single audit event.
func (s *Service) GetEvent(id uint) (*entities.AuditEvent, error) {
	return s.repo.GetEventByID(id)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(cutoff)
}

// truncate shortens a string to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
