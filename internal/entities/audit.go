package entities

import "time"

type AuditEventType string

const (
	AuditEventAuth   AuditEventType = "auth"
	AuditEventSystem AuditEventType = "system"
)

// Auth audit actions, one per call-through operation.
const (
	AuditActionSignIn         = "sign_in"
	AuditActionSignUp         = "sign_up"
	AuditActionMagicLink      = "magic_link"
	AuditActionPasswordReset  = "password_reset"
	AuditActionCallback       = "callback"
	AuditActionPasswordUpdate = "password_update"
	AuditActionSignOut        = "sign_out"
	AuditActionSessionRefresh = "session_refresh"
)

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailed  AuditStatus = "failed"
)

type AuditEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ExternalID  string         `gorm:"index;size:64" json:"external_id,omitempty"` // provider user id, when known
	Email       string         `gorm:"index;size:255" json:"email,omitempty"`
	EventType   AuditEventType `gorm:"index;size:50" json:"event_type"`
	Action      string         `gorm:"size:100" json:"action"`
	Description string         `gorm:"size:500" json:"description"`
	IPAddress   string         `gorm:"size:45" json:"ip_address,omitempty"`
	UserAgent   string         `gorm:"size:500" json:"user_agent,omitempty"`
	RequestID   string         `gorm:"size:64" json:"request_id,omitempty"`
	Status      AuditStatus    `gorm:"size:20" json:"status"`
	ErrorMsg    string         `gorm:"size:500" json:"error_msg,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
