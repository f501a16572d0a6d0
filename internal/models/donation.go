package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DonationStatus string

const (
	DonationAvailable DonationStatus = "available"
	DonationClaimed   DonationStatus = "claimed"
	DonationDelivered DonationStatus = "delivered"
	DonationExpired   DonationStatus = "expired"
)

// UrgencyLevel mirrors urgency.Level as persisted on the donation row.
type UrgencyLevel string

type Location struct {
	Address string   `gorm:"type:text" json:"address"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

type Donation struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DonorID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"donorId"`
	FoodName          string         `gorm:"type:varchar(200);not null" json:"foodName"`
	Quantity          string         `gorm:"type:varchar(100);not null" json:"quantity"`
	OriginalQuantity  *float64       `json:"originalQuantity,omitempty"`
	RemainingQuantity *float64       `json:"remainingQuantity,omitempty"`
	QuantityUnit      string         `gorm:"type:varchar(30);default:'servings'" json:"quantityUnit"`
	Quality           string         `gorm:"type:varchar(100);not null" json:"quality"`
	Type              string         `gorm:"type:varchar(100);not null" json:"type"`
	Expiry            time.Time      `gorm:"not null;index" json:"expiry"`
	PickupLocation    Location       `gorm:"embedded;embeddedPrefix:pickup_" json:"pickupLocation"`
	Notes             string         `gorm:"type:text" json:"notes,omitempty"`
	Status            DonationStatus `gorm:"type:varchar(20);not null;default:'available';index" json:"status"`

	// Expiry tracking
	UrgencyLevel           UrgencyLevel `gorm:"type:varchar(20);not null;default:'safe'" json:"urgencyLevel"`
	ExpiryNotificationSent bool         `gorm:"not null;default:false" json:"expiryNotificationSent"`
	ExpiryWarningTime      *time.Time   `json:"expiryWarningTime,omitempty"`
	MarkedAsExpired        bool         `gorm:"not null;default:false;index" json:"markedAsExpired"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (d *Donation) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = DonationAvailable
	}
	if d.QuantityUnit == "" {
		d.QuantityUnit = "servings"
	}
	return nil
}

// DonationView is a donation with its donor attached by explicit lookup.
type DonationView struct {
	Donation
	Donor *UserSummary `json:"donor,omitempty"`
}

// DonationSummary is the slice of a donation shown next to a request.
type DonationSummary struct {
	ID             uuid.UUID      `json:"id"`
	FoodName       string         `json:"foodName"`
	Quantity       string         `json:"quantity"`
	Expiry         time.Time      `json:"expiry"`
	Status         DonationStatus `json:"status"`
	PickupLocation Location       `json:"pickupLocation"`
}

func (d *Donation) Summary() DonationSummary {
	return DonationSummary{
		ID:             d.ID,
		FoodName:       d.FoodName,
		Quantity:       d.Quantity,
		Expiry:         d.Expiry,
		Status:         d.Status,
		PickupLocation: d.PickupLocation,
	}
}
