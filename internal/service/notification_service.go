package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/repository"
	"github.com/Baaaki/mealmender/internal/urgency"
	"github.com/Baaaki/mealmender/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const notificationListLimit = 50

type NotificationService struct {
	store *repository.Store
	now   func() time.Time
}

func NewNotificationService(store *repository.Store) *NotificationService {
	return &NotificationService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// NotifyExpiring records an expiry warning for the donor of d. It writes
// through tx so the record commits or rolls back together with the latch.
func (s *NotificationService) NotifyExpiring(ctx context.Context, tx *repository.Store, d *models.Donation, now time.Time) (*models.Notification, error) {
	open, err := tx.Requests.CountForDonation(ctx, d.ID, models.RequestPending, models.RequestApproved)
	if err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}

	hours, minutes := urgency.TimeLeft(d.Expiry, now)
	message := ExpiryMessage(d.FoodName, hours, minutes, open)

	meta := models.ExpiryMetadata{
		FoodName:        d.FoodName,
		Expiry:          d.Expiry,
		HoursLeft:       hours,
		MinutesLeft:     minutes,
		PendingRequests: open,
	}

	donationID := d.ID
	n := &models.Notification{
		UserID:     d.DonorID,
		DonationID: &donationID,
		Type:       models.NotificationExpiryWarning,
		Title:      "Food Expiring Soon",
		Message:    message,
		Metadata:   datatypes.NewJSONType(meta),
	}
	if err := tx.Notifications.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	logger.Log.Info("Expiry notification recorded",
		zap.String("notification_id", n.ID.String()),
		zap.String("donation_id", d.ID.String()),
		zap.String("user_id", d.DonorID.String()),
		zap.Int64("open_requests", open),
		zap.String("message", message),
	)
	return n, nil
}

// ExpiryMessage phrases the warning differently depending on whether anyone
// has asked for the donation yet.
func ExpiryMessage(foodName string, hours, minutes int, openRequests int64) string {
	if openRequests > 0 {
		return fmt.Sprintf("Your donation %q has %dh %dm left and has %d pending request(s). Please review them soon!",
			foodName, hours, minutes, openRequests)
	}
	return fmt.Sprintf("Your donation %q expires in %dh %dm and hasn't been claimed yet. Consider donating it offline to prevent waste.",
		foodName, hours, minutes)
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID) ([]*models.Notification, int64, error) {
	items, err := s.store.Notifications.ListByUser(ctx, userID, notificationListLimit)
	if err != nil {
		return nil, 0, errInternal(err)
	}
	unread, err := s.store.Notifications.CountUnread(ctx, userID)
	if err != nil {
		return nil, 0, errInternal(err)
	}
	return items, unread, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	rows, err := s.store.Notifications.MarkRead(ctx, id, userID, s.now())
	if err != nil {
		return errInternal(err)
	}
	if rows == 0 {
		return ErrNotificationAbsent
	}
	return nil
}
