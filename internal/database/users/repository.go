// Package users stores the local mirror of provider-issued user records.
//
// # Usage
//
//	repo := users.NewRepository(db)
//	user, err := repo.Upsert(&entities.User{ExternalID: id, Email: email})
package users

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/gatekeeper/internal/entities"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrExternalIDMissing = errors.New("external id is required")
)

// Repository handles all user mirror operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new users repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert inserts the record or refreshes the mirrored fields of an existing one,
// matched by ExternalID. LastSeenAt defaults to now.
func (r *Repository) Upsert(user *entities.User) (*entities.User, error) {
	if user.ExternalID == "" {
		return nil, ErrExternalIDMissing
	}
	if user.LastSeenAt.IsZero() {
		user.LastSeenAt = time.Now()
	}

	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email",
			"role",
			"email_confirmed_at",
			"last_sign_in_at",
			"last_seen_at",
			"metadata",
			"updated_at",
		}),
	}).Create(user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return r.GetByExternalID(user.ExternalID)
}

// GetByExternalID retrieves a mirrored user by provider id.
func (r *Repository) GetByExternalID(externalID string) (*entities.User, error) {
	var user entities.User
	err := r.db.Where("external_id = ?", externalID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Touch records that the user was seen at t.
func (r *Repository) Touch(externalID string, t time.Time) error {
	result := r.db.Model(&entities.User{}).
		Where("external_id = ?", externalID).
		Update("last_seen_at", t)
	if result.Error != nil {
		return fmt.Errorf("failed to touch user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteStale removes mirrored users not seen since olderThan.
// Returns the number of deleted rows.
func (r *Repository) DeleteStale(olderThan time.Time) (int64, error) {
	result := r.db.Where("last_seen_at < ?", olderThan).Delete(&entities.User{})
	return result.RowsAffected, result.Error
}

// DeleteStaleUsers removes users not seen within retention. It satisfies the
// prune task's interface.
func (r *Repository) DeleteStaleUsers(retention time.Duration) (int64, error) {
	return r.DeleteStale(time.Now().Add(-retention))
}

// Count returns the number of mirrored users.
func (r *Repository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&entities.User{}).Count(&count).Error
	return count, err
}
