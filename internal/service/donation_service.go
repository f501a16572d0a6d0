package service

import (
	"context"
	"strings"
	"time"

	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/repository"
	"github.com/Baaaki/mealmender/internal/urgency"
	"github.com/Baaaki/mealmender/pkg/apperror"
	"github.com/Baaaki/mealmender/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	PublicPageSize = 12
	AdminPageSize  = 10
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role models.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

type CreateDonationInput struct {
	FoodName         string          `json:"foodName" binding:"required"`
	Quantity         string          `json:"quantity" binding:"required"`
	OriginalQuantity *float64        `json:"originalQuantity"`
	QuantityUnit     string          `json:"quantityUnit"`
	Quality          string          `json:"quality" binding:"required"`
	Type             string          `json:"type" binding:"required"`
	Expiry           time.Time       `json:"expiry" binding:"required"`
	PickupLocation   models.Location `json:"pickupLocation"`
	Notes            string          `json:"notes"`
}

// DonationPatch is the allow-list of fields a donor may edit. Owner, status
// and the expiry-tracking fields are deliberately absent.
type DonationPatch struct {
	FoodName       *string          `json:"foodName"`
	Quantity       *string          `json:"quantity"`
	QuantityUnit   *string          `json:"quantityUnit"`
	Quality        *string          `json:"quality"`
	Type           *string          `json:"type"`
	Expiry         *time.Time       `json:"expiry"`
	PickupLocation *models.Location `json:"pickupLocation"`
	Notes          *string          `json:"notes"`
}

type DonationPage struct {
	Donations []*models.DonationView `json:"donations"`
	Page      int                    `json:"page"`
	Pages     int                    `json:"pages"`
	Total     int64                  `json:"total"`
}

type DonationService struct {
	store *repository.Store
	now   func() time.Time
}

func NewDonationService(store *repository.Store) *DonationService {
	return &DonationService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *DonationService) Create(ctx context.Context, donorID uuid.UUID, in CreateDonationInput) (*models.Donation, error) {
	in.FoodName = strings.TrimSpace(in.FoodName)
	in.Quantity = strings.TrimSpace(in.Quantity)
	if in.FoodName == "" || in.Quantity == "" || strings.TrimSpace(in.Quality) == "" ||
		strings.TrimSpace(in.Type) == "" || in.Expiry.IsZero() {
		return nil, apperror.InvalidArgument("please provide all required fields: foodName, quantity, quality, type, and expiry")
	}

	now := s.now()
	if !in.Expiry.After(now) {
		return nil, ErrExpiryInPast
	}

	d := &models.Donation{
		DonorID:           donorID,
		FoodName:          in.FoodName,
		Quantity:          in.Quantity,
		OriginalQuantity:  in.OriginalQuantity,
		RemainingQuantity: in.OriginalQuantity,
		QuantityUnit:      in.QuantityUnit,
		Quality:           strings.TrimSpace(in.Quality),
		Type:              strings.TrimSpace(in.Type),
		Expiry:            in.Expiry.UTC(),
		PickupLocation:    in.PickupLocation,
		Notes:             in.Notes,
		Status:            models.DonationAvailable,
		UrgencyLevel:      urgency.Classify(in.Expiry, now),
	}

	if err := s.store.Donations.Create(ctx, d); err != nil {
		logger.Log.Error("Failed to create donation", zap.String("donor_id", donorID.String()), zap.Error(err))
		return nil, errInternal(err)
	}

	logger.Log.Info("Donation created",
		zap.String("donation_id", d.ID.String()),
		zap.String("donor_id", donorID.String()),
		zap.String("urgency", string(d.UrgencyLevel)),
	)
	return d, nil
}

func (s *DonationService) Get(ctx context.Context, id uuid.UUID) (*models.DonationView, error) {
	d, err := s.store.Donations.GetByID(ctx, id)
	if err != nil {
		return nil, errInternal(err)
	}
	if d == nil {
		return nil, ErrDonationNotFound
	}
	views, err := s.attachDonors(ctx, []*models.Donation{d})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// ListAvailable pages available donations by recency and orders each page by
// live urgency, keeping recency order within the same level.
func (s *DonationService) ListAvailable(ctx context.Context, pageNumber int) (*DonationPage, error) {
	page := repository.Page{Number: normalizePage(pageNumber), Size: PublicPageSize}

	donations, total, err := s.store.Donations.ListAvailable(ctx, page)
	if err != nil {
		return nil, errInternal(err)
	}

	now := s.now()
	for _, d := range donations {
		d.UrgencyLevel = urgency.Classify(d.Expiry, now)
	}
	urgency.SortByRank(donations, func(d *models.Donation) urgency.Level { return d.UrgencyLevel })

	views, err := s.attachDonors(ctx, donations)
	if err != nil {
		return nil, err
	}
	return &DonationPage{Donations: views, Page: page.Number, Pages: pageCount(total, page.Size), Total: total}, nil
}

func (s *DonationService) ListAll(ctx context.Context, pageNumber int) (*DonationPage, error) {
	page := repository.Page{Number: normalizePage(pageNumber), Size: AdminPageSize}

	donations, total, err := s.store.Donations.ListAll(ctx, page)
	if err != nil {
		return nil, errInternal(err)
	}
	views, err := s.attachDonors(ctx, donations)
	if err != nil {
		return nil, err
	}
	return &DonationPage{Donations: views, Page: page.Number, Pages: pageCount(total, page.Size), Total: total}, nil
}

func (s *DonationService) ListByDonor(ctx context.Context, donorID uuid.UUID) ([]*models.Donation, error) {
	donations, err := s.store.Donations.ListByDonor(ctx, donorID)
	if err != nil {
		return nil, errInternal(err)
	}
	return donations, nil
}

func (s *DonationService) Update(ctx context.Context, id, actorID uuid.UUID, patch DonationPatch) (*models.Donation, error) {
	d, err := s.store.Donations.GetByID(ctx, id)
	if err != nil {
		return nil, errInternal(err)
	}
	if d == nil {
		return nil, ErrDonationNotFound
	}
	if d.DonorID != actorID {
		return nil, ErrDonationNotOwned
	}
	if d.Status != models.DonationAvailable {
		return nil, ErrDonationNotAvailable
	}

	fields, err := donationPatchFields(patch)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expiry := d.Expiry
	if patch.Expiry != nil {
		if !patch.Expiry.After(now) {
			return nil, ErrExpiryInPast
		}
		expiry = patch.Expiry.UTC()
		fields["expiry"] = expiry
	}
	// The notification latch stays as it is even when expiry moves.
	fields["urgency_level"] = urgency.Classify(expiry, now)

	rows, err := s.store.Donations.UpdateIfAvailable(ctx, id, fields)
	if err != nil {
		logger.Log.Error("Failed to update donation", zap.String("donation_id", id.String()), zap.Error(err))
		return nil, errInternal(err)
	}
	if rows == 0 {
		// Claimed or expired between the guard and the write.
		return nil, ErrDonationNotAvailable
	}

	logger.Log.Info("Donation updated",
		zap.String("donation_id", id.String()),
		zap.Int("fields", len(fields)),
	)

	updated, err := s.store.Donations.GetByID(ctx, id)
	if err != nil {
		return nil, errInternal(err)
	}
	return updated, nil
}

// Delete removes the donation together with its requests, their messages and
// its notifications. Admins skip the ownership and status guards.
func (s *DonationService) Delete(ctx context.Context, id uuid.UUID, actor Actor) error {
	d, err := s.store.Donations.GetByID(ctx, id)
	if err != nil {
		return errInternal(err)
	}
	if d == nil {
		return ErrDonationNotFound
	}
	if !actor.IsAdmin() {
		if d.DonorID != actor.ID {
			return ErrDonationNotOwned
		}
		if d.Status != models.DonationAvailable {
			return ErrDonationNotAvailable
		}
	}

	var removedRequests, removedMessages int64
	err = s.store.WithTx(ctx, func(tx *repository.Store) error {
		if !actor.IsAdmin() {
			current, err := tx.Donations.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if current == nil {
				return ErrDonationNotFound
			}
			if current.Status != models.DonationAvailable {
				return ErrDonationNotAvailable
			}
		}

		requestIDs, err := tx.Requests.IDsForDonation(ctx, id)
		if err != nil {
			return err
		}
		if removedMessages, err = tx.Messages.DeleteForRequests(ctx, requestIDs); err != nil {
			return err
		}
		if removedRequests, err = tx.Requests.DeleteForDonation(ctx, id); err != nil {
			return err
		}
		if err := tx.Notifications.DeleteForDonation(ctx, id); err != nil {
			return err
		}
		return tx.Donations.Delete(ctx, id)
	})
	if err != nil {
		if apperror.CodeOf(err) != apperror.CodeInternal {
			return err
		}
		logger.Log.Error("Failed to delete donation", zap.String("donation_id", id.String()), zap.Error(err))
		return errInternal(err)
	}

	logger.Log.Info("Donation deleted",
		zap.String("donation_id", id.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.Bool("admin", actor.IsAdmin()),
		zap.Int64("requests_removed", removedRequests),
		zap.Int64("messages_removed", removedMessages),
	)
	return nil
}

func (s *DonationService) attachDonors(ctx context.Context, donations []*models.Donation) ([]*models.DonationView, error) {
	ids := make([]uuid.UUID, 0, len(donations))
	for _, d := range donations {
		ids = append(ids, d.DonorID)
	}
	donors, err := s.store.Users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errInternal(err)
	}

	views := make([]*models.DonationView, 0, len(donations))
	for _, d := range donations {
		v := &models.DonationView{Donation: *d}
		if u, ok := donors[d.DonorID]; ok {
			summary := u.Summary()
			v.Donor = &summary
		}
		views = append(views, v)
	}
	return views, nil
}

func donationPatchFields(p DonationPatch) (map[string]interface{}, error) {
	fields := map[string]interface{}{}

	required := []struct {
		column, name string
		value        *string
	}{
		{"food_name", "foodName", p.FoodName},
		{"quantity", "quantity", p.Quantity},
		{"quality", "quality", p.Quality},
		{"type", "type", p.Type},
	}
	for _, f := range required {
		if f.value == nil {
			continue
		}
		v := strings.TrimSpace(*f.value)
		if v == "" {
			return nil, apperror.InvalidArgument(f.name + " cannot be empty")
		}
		fields[f.column] = v
	}

	if p.QuantityUnit != nil {
		fields["quantity_unit"] = strings.TrimSpace(*p.QuantityUnit)
	}
	if p.Notes != nil {
		fields["notes"] = *p.Notes
	}
	if p.PickupLocation != nil {
		fields["pickup_address"] = p.PickupLocation.Address
		fields["pickup_lat"] = p.PickupLocation.Lat
		fields["pickup_lon"] = p.PickupLocation.Lon
	}
	return fields, nil
}

func normalizePage(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func pageCount(total int64, size int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
