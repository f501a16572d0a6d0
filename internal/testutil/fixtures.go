package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TestPassword is the plain-text password every fixture user is created with.
const TestPassword = "Test123456"

var fixtureHash string

// CreateUser inserts a user with TestPassword. The hash is computed once per
// test binary since argon2 dominates fixture cost otherwise.
func CreateUser(t *testing.T, db *gorm.DB, username string, role models.Role) *models.User {
	t.Helper()

	if fixtureHash == "" {
		h, err := utils.HashPassword(TestPassword)
		if err != nil {
			t.Fatalf("hash fixture password: %v", err)
		}
		fixtureHash = h
	}

	user := &models.User{
		FirstName:    "Test",
		LastName:     username,
		Username:     username,
		Email:        fmt.Sprintf("%s@example.com", username),
		PasswordHash: fixtureHash,
		Phone:        "555-0100",
		Address:      "1 Test Street",
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

// DonationOption tweaks a fixture donation before it is inserted.
type DonationOption func(*models.Donation)

func WithExpiry(expiry time.Time) DonationOption {
	return func(d *models.Donation) { d.Expiry = expiry }
}

func WithStatus(status models.DonationStatus) DonationOption {
	return func(d *models.Donation) { d.Status = status }
}

func WithCreatedAt(at time.Time) DonationOption {
	return func(d *models.Donation) { d.CreatedAt = at }
}

func WithFoodName(name string) DonationOption {
	return func(d *models.Donation) { d.FoodName = name }
}

func CreateDonation(t *testing.T, db *gorm.DB, donorID uuid.UUID, opts ...DonationOption) *models.Donation {
	t.Helper()

	d := &models.Donation{
		DonorID:        donorID,
		FoodName:       "Vegetable soup",
		Quantity:       "20 servings",
		Quality:        "Fresh",
		Type:           "Cooked",
		Expiry:         time.Now().UTC().Add(24 * time.Hour),
		PickupLocation: models.Location{Address: "12 Market Road"},
		Status:         models.DonationAvailable,
		UrgencyLevel:   "safe",
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := db.Create(d).Error; err != nil {
		t.Fatalf("create donation: %v", err)
	}
	return d
}

// CreateRequest inserts a request directly, bypassing the claim guards.
func CreateRequest(t *testing.T, db *gorm.DB, donation *models.Donation, recipientID uuid.UUID, status models.RequestStatus) *models.Request {
	t.Helper()

	req := &models.Request{
		DonationID:  donation.ID,
		DonorID:     donation.DonorID,
		RecipientID: recipientID,
		Status:      status,
	}
	if err := db.Create(req).Error; err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func Reload[T any](t *testing.T, db *gorm.DB, id uuid.UUID) *T {
	t.Helper()

	var out T
	if err := db.Where("id = ?", id).First(&out).Error; err != nil {
		t.Fatalf("reload %T %s: %v", out, id, err)
	}
	return &out
}
