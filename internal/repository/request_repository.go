package repository

import (
	"context"

	"github.com/Baaaki/mealmender/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) Create(ctx context.Context, req *models.Request) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	return first[models.Request](r.db.WithContext(ctx), "id = ?", id)
}

func (r *RequestRepository) GetByPair(ctx context.Context, donationID, recipientID uuid.UUID) (*models.Request, error) {
	return first[models.Request](r.db.WithContext(ctx), "donation_id = ? AND recipient_id = ?", donationID, recipientID)
}

func (r *RequestRepository) ListByRecipient(ctx context.Context, recipientID uuid.UUID) ([]*models.Request, error) {
	var reqs []*models.Request
	err := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID).Order("created_at DESC").Find(&reqs).Error
	return reqs, err
}

func (r *RequestRepository) ListByDonor(ctx context.Context, donorID uuid.UUID) ([]*models.Request, error) {
	var reqs []*models.Request
	err := r.db.WithContext(ctx).Where("donor_id = ?", donorID).Order("created_at DESC").Find(&reqs).Error
	return reqs, err
}

func (r *RequestRepository) ListByDonation(ctx context.Context, donationID uuid.UUID) ([]*models.Request, error) {
	var reqs []*models.Request
	err := r.db.WithContext(ctx).Where("donation_id = ?", donationID).Order("created_at ASC").Find(&reqs).Error
	return reqs, err
}

// UpdateFromStatus applies fields only while the request is still in from.
func (r *RequestRepository) UpdateFromStatus(ctx context.Context, id uuid.UUID, from models.RequestStatus, fields map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Request{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	return res.RowsAffected, res.Error
}

// RejectOtherPending rejects every Pending request on the donation except keep.
func (r *RequestRepository) RejectOtherPending(ctx context.Context, donationID, keep uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Request{}).
		Where("donation_id = ? AND id <> ? AND status = ?", donationID, keep, models.RequestPending).
		Update("status", models.RequestRejected)
	return res.RowsAffected, res.Error
}

func (r *RequestRepository) CountForDonation(ctx context.Context, donationID uuid.UUID, statuses ...models.RequestStatus) (int64, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&models.Request{}).Where("donation_id = ?", donationID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	err := q.Count(&n).Error
	return n, err
}

func (r *RequestRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return groupCount(r.db.WithContext(ctx).Model(&models.Request{}), "status")
}

func (r *RequestRepository) IDsForDonation(ctx context.Context, donationID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Request{}).Where("donation_id = ?", donationID).Pluck("id", &ids).Error
	return ids, err
}

func (r *RequestRepository) DeleteForDonation(ctx context.Context, donationID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("donation_id = ?", donationID).Delete(&models.Request{})
	return res.RowsAffected, res.Error
}
