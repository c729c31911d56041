package entities

import "time"

// User is the local mirror of a provider-issued user record. The provider owns
// the account; this row only caches what it last told us.
type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	ExternalID       string     `gorm:"uniqueIndex;size:64" json:"external_id"`
	Email            string     `gorm:"index;size:255" json:"email"`
	Role             string     `gorm:"size:64" json:"role,omitempty"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time `json:"last_sign_in_at,omitempty"`
	LastSeenAt       time.Time  `gorm:"index" json:"last_seen_at"`
	Metadata         string     `gorm:"type:text" json:"metadata,omitempty"` // JSON user_metadata
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// IsConfirmed reports whether the provider has confirmed the email address.
func (u *User) IsConfirmed() bool {
	return u.EmailConfirmedAt != nil
}
