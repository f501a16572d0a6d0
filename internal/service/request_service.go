package service

import (
	"context"
	"strings"
	"time"

	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/repository"
	"github.com/Baaaki/mealmender/pkg/apperror"
	"github.com/Baaaki/mealmender/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ClaimInput struct {
	RequestedQuantity   *float64              `json:"requestedQuantity"`
	SpecialRequirements string                `json:"specialRequirements"`
	PickupTime          *time.Time            `json:"pickupTime"`
	DeliveryMethod      models.DeliveryMethod `json:"deliveryMethod"`
	DeliveryAddress     string                `json:"deliveryAddress"`
	RecipientLocation   models.Coordinates    `json:"recipientLocation"`
}

type RequestService struct {
	store *repository.Store
	now   func() time.Time
}

func NewRequestService(store *repository.Store) *RequestService {
	return &RequestService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Claim creates a Pending request for an available donation. The donation
// itself is untouched until the donor approves.
func (s *RequestService) Claim(ctx context.Context, donationID, recipientID uuid.UUID, in ClaimInput) (*models.Request, error) {
	donation, err := s.store.Donations.GetByID(ctx, donationID)
	if err != nil {
		return nil, errInternal(err)
	}
	if donation == nil {
		return nil, ErrDonationNotFound
	}
	if donation.Status != models.DonationAvailable {
		return nil, ErrDonationNotAvailable
	}
	if donation.DonorID == recipientID {
		logger.Log.Warn("Self-claim blocked",
			zap.String("donation_id", donationID.String()),
			zap.String("user_id", recipientID.String()),
		)
		return nil, ErrSelfClaim
	}

	existing, err := s.store.Requests.GetByPair(ctx, donationID, recipientID)
	if err != nil {
		return nil, errInternal(err)
	}
	if existing != nil {
		return nil, ErrAlreadyRequested
	}

	if in.DeliveryMethod == "" {
		in.DeliveryMethod = models.DeliveryNotDecided
	}
	if !in.DeliveryMethod.Valid() {
		return nil, apperror.InvalidArgument("invalid delivery method")
	}
	if in.RequestedQuantity != nil && *in.RequestedQuantity <= 0 {
		return nil, apperror.InvalidArgument("requestedQuantity must be positive")
	}

	req := &models.Request{
		DonationID:          donationID,
		DonorID:             donation.DonorID,
		RecipientID:         recipientID,
		Status:              models.RequestPending,
		RequestedQuantity:   in.RequestedQuantity,
		SpecialRequirements: strings.TrimSpace(in.SpecialRequirements),
		PickupTime:          in.PickupTime,
		DeliveryMethod:      in.DeliveryMethod,
		DeliveryAddress:     strings.TrimSpace(in.DeliveryAddress),
		RecipientLocation:   in.RecipientLocation,
	}

	if err := s.store.Requests.Create(ctx, req); err != nil {
		// The unique (donation, recipient) index catches concurrent duplicate claims.
		if repository.IsDuplicateKey(err) {
			return nil, ErrAlreadyRequested
		}
		logger.Log.Error("Failed to create request", zap.String("donation_id", donationID.String()), zap.Error(err))
		return nil, errInternal(err)
	}

	logger.Log.Info("Donation claimed",
		zap.String("request_id", req.ID.String()),
		zap.String("donation_id", donationID.String()),
		zap.String("recipient_id", recipientID.String()),
	)
	return req, nil
}

// SetStatus validates and applies one request transition with its side
// effects in a single transaction. Every write is conditional on the state the
// guards saw, so a concurrent transition makes this one fail with InvalidState
// and leaves nothing behind.
func (s *RequestService) SetStatus(ctx context.Context, requestID, actorID uuid.UUID, next models.RequestStatus) (*models.Request, error) {
	if !next.Valid() || next == models.RequestPending {
		return nil, ErrInvalidStatus
	}

	req, err := s.store.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, errInternal(err)
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if !req.IsParticipant(actorID) {
		return nil, ErrNotParticipant
	}
	if next.DonorOnly() && actorID != req.DonorID {
		return nil, ErrDonorOnlyStatus
	}
	if !req.Status.CanTransitionTo(next) {
		logger.Log.Warn("Illegal request transition",
			zap.String("request_id", requestID.String()),
			zap.String("from", string(req.Status)),
			zap.String("to", string(next)),
		)
		return nil, ErrIllegalTransition
	}

	now := s.now()
	fields := map[string]interface{}{"status": next}
	var rejected int64

	err = s.store.WithTx(ctx, func(tx *repository.Store) error {
		switch next {
		case models.RequestApproved:
			rows, err := tx.Donations.TransitionStatus(ctx, req.DonationID, models.DonationAvailable, models.DonationClaimed)
			if err != nil {
				return err
			}
			if rows == 0 {
				return ErrDonationNotAvailable
			}
			if req.TrackingStatus.Accepted == nil {
				fields["tracking_accepted"] = now
			}
			fields["contact_shared"] = true

		case models.RequestInTransit:
			if req.TrackingStatus.InTransit == nil {
				fields["tracking_in_transit"] = now
			}

		case models.RequestDelivered:
			if req.TrackingStatus.Delivered == nil {
				fields["tracking_delivered"] = now
			}
			if err := tx.Donations.SetStatus(ctx, req.DonationID, models.DonationDelivered); err != nil {
				return err
			}

		case models.RequestCompleted:
			if err := tx.Donations.SetStatus(ctx, req.DonationID, models.DonationDelivered); err != nil {
				return err
			}
		}

		rows, err := tx.Requests.UpdateFromStatus(ctx, req.ID, req.Status, fields)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConcurrentUpdate
		}

		if next == models.RequestApproved {
			if rejected, err = tx.Requests.RejectOtherPending(ctx, req.DonationID, req.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if apperror.CodeOf(err) != apperror.CodeInternal {
			logger.Log.Warn("Request transition aborted",
				zap.String("request_id", requestID.String()),
				zap.String("to", string(next)),
				zap.Error(err),
			)
			return nil, err
		}
		logger.Log.Error("Request transition failed", zap.String("request_id", requestID.String()), zap.Error(err))
		return nil, errInternal(err)
	}

	logger.Log.Info("Request status updated",
		zap.String("request_id", requestID.String()),
		zap.String("donation_id", req.DonationID.String()),
		zap.String("actor_id", actorID.String()),
		zap.String("from", string(req.Status)),
		zap.String("to", string(next)),
		zap.Int64("rejected_others", rejected),
	)

	updated, err := s.store.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, errInternal(err)
	}
	return updated, nil
}

// Get returns a request with its donation and both parties, for participants only.
func (s *RequestService) Get(ctx context.Context, requestID, actorID uuid.UUID) (*models.RequestView, error) {
	req, err := s.store.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, errInternal(err)
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if !req.IsParticipant(actorID) {
		return nil, ErrNotParticipant
	}
	views, err := s.buildViews(ctx, []*models.Request{req})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// ListMine returns the requests the user made as a recipient.
func (s *RequestService) ListMine(ctx context.Context, recipientID uuid.UUID) ([]*models.RequestView, error) {
	reqs, err := s.store.Requests.ListByRecipient(ctx, recipientID)
	if err != nil {
		return nil, errInternal(err)
	}
	return s.buildViews(ctx, reqs)
}

// ListForMe returns the requests made against the user's donations.
func (s *RequestService) ListForMe(ctx context.Context, donorID uuid.UUID) ([]*models.RequestView, error) {
	reqs, err := s.store.Requests.ListByDonor(ctx, donorID)
	if err != nil {
		return nil, errInternal(err)
	}
	return s.buildViews(ctx, reqs)
}

// buildViews attaches donations and users with one batched lookup each.
// Contact details are only filled in once the request shares them.
func (s *RequestService) buildViews(ctx context.Context, reqs []*models.Request) ([]*models.RequestView, error) {
	donationIDs := make([]uuid.UUID, 0, len(reqs))
	userIDs := make([]uuid.UUID, 0, 2*len(reqs))
	for _, r := range reqs {
		donationIDs = append(donationIDs, r.DonationID)
		userIDs = append(userIDs, r.DonorID, r.RecipientID)
	}

	donations, err := s.store.Donations.GetByIDs(ctx, donationIDs)
	if err != nil {
		return nil, errInternal(err)
	}
	users, err := s.store.Users.GetByIDs(ctx, userIDs)
	if err != nil {
		return nil, errInternal(err)
	}

	views := make([]*models.RequestView, 0, len(reqs))
	for _, r := range reqs {
		v := &models.RequestView{Request: *r}
		if d, ok := donations[r.DonationID]; ok {
			summary := d.Summary()
			v.Donation = &summary
		}
		if u, ok := users[r.DonorID]; ok {
			c := u.Contact(r.ContactShared)
			v.Donor = &c
		}
		if u, ok := users[r.RecipientID]; ok {
			c := u.Contact(r.ContactShared)
			v.Recipient = &c
		}
		views = append(views, v)
	}
	return views, nil
}
