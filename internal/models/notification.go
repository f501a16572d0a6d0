package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const NotificationExpiryWarning = "expiry_warning"

// ExpiryMetadata is the structured payload of an expiry_warning notification.
type ExpiryMetadata struct {
	FoodName        string    `json:"foodName"`
	Expiry          time.Time `json:"expiry"`
	HoursLeft       int       `json:"hoursLeft"`
	MinutesLeft     int       `json:"minutesLeft"`
	PendingRequests int64     `json:"pendingRequests"`
}

// Notification represents an in-app notification for a user.
type Notification struct {
	ID         uuid.UUID                          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID                          `gorm:"type:uuid;not null;index" json:"userId"`
	DonationID *uuid.UUID                         `gorm:"type:uuid;index" json:"donationId,omitempty"`
	Type       string                             `gorm:"type:varchar(64);not null" json:"type"`
	Title      string                             `gorm:"type:varchar(255);not null" json:"title"`
	Message    string                             `gorm:"type:text" json:"message"`
	Metadata   datatypes.JSONType[ExpiryMetadata] `json:"metadata"`
	IsRead     bool                               `gorm:"not null;default:false;index" json:"isRead"`
	ReadAt     *time.Time                         `json:"readAt,omitempty"`
	CreatedAt  time.Time                          `gorm:"index" json:"createdAt"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
