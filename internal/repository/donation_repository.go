package repository

import (
	"context"
	"time"

	"github.com/Baaaki/mealmender/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DonationRepository struct {
	db *gorm.DB
}

func NewDonationRepository(db *gorm.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

func (r *DonationRepository) Create(ctx context.Context, d *models.Donation) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *DonationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	return first[models.Donation](r.db.WithContext(ctx), "id = ?", id)
}

func (r *DonationRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Donation, error) {
	out := make(map[uuid.UUID]*models.Donation, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var donations []*models.Donation
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&donations).Error; err != nil {
		return nil, err
	}
	for _, d := range donations {
		out[d.ID] = d
	}
	return out, nil
}

// ListAvailable returns one page of available donations, newest first.
func (r *DonationRepository) ListAvailable(ctx context.Context, page Page) ([]*models.Donation, int64, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("status = ?", models.DonationAvailable), page)
}

// ListAll is the unfiltered admin listing.
func (r *DonationRepository) ListAll(ctx context.Context, page Page) ([]*models.Donation, int64, error) {
	return r.list(ctx, r.db.WithContext(ctx), page)
}

func (r *DonationRepository) list(ctx context.Context, scope *gorm.DB, page Page) ([]*models.Donation, int64, error) {
	var total int64
	if err := scope.Session(&gorm.Session{}).Model(&models.Donation{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var donations []*models.Donation
	err := scope.Session(&gorm.Session{}).
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&donations).Error
	if err != nil {
		return nil, 0, err
	}
	return donations, total, nil
}

func (r *DonationRepository) ListByDonor(ctx context.Context, donorID uuid.UUID) ([]*models.Donation, error) {
	var donations []*models.Donation
	err := r.db.WithContext(ctx).
		Where("donor_id = ?", donorID).
		Order("created_at DESC").
		Find(&donations).Error
	return donations, err
}

// ListSweepCandidates returns every donation the expiry sweep still has to look at.
func (r *DonationRepository) ListSweepCandidates(ctx context.Context) ([]*models.Donation, error) {
	var donations []*models.Donation
	err := r.db.WithContext(ctx).
		Where("status = ? AND marked_as_expired = ?", models.DonationAvailable, false).
		Order("expiry ASC").
		Find(&donations).Error
	return donations, err
}

// UpdateIfAvailable applies fields only while the donation is still available.
// It returns the number of rows changed.
func (r *DonationRepository) UpdateIfAvailable(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Donation{}).
		Where("id = ? AND status = ?", id, models.DonationAvailable).
		Updates(fields)
	return res.RowsAffected, res.Error
}

// TransitionStatus moves the donation from one status to another, returning
// zero rows when it was no longer in from.
func (r *DonationRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.DonationStatus) (int64, error) {
	return r.UpdateWhereStatus(ctx, id, from, map[string]interface{}{"status": to})
}

func (r *DonationRepository) UpdateWhereStatus(ctx context.Context, id uuid.UUID, from models.DonationStatus, fields map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Donation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	return res.RowsAffected, res.Error
}

// SetStatus is unconditional.
func (r *DonationRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.DonationStatus) error {
	return r.db.WithContext(ctx).Model(&models.Donation{}).Where("id = ?", id).Update("status", status).Error
}

func (r *DonationRepository) MarkExpired(ctx context.Context, id uuid.UUID, level models.UrgencyLevel) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Donation{}).
		Where("id = ? AND status = ? AND marked_as_expired = ?", id, models.DonationAvailable, false).
		Updates(map[string]interface{}{
			"status":            models.DonationExpired,
			"marked_as_expired": true,
			"urgency_level":     level,
		})
	return res.RowsAffected, res.Error
}

// ClaimExpiryLatch sets the notification latch on a still-available donation.
// Exactly one caller ever sees a row count of 1 for a given donation.
func (r *DonationRepository) ClaimExpiryLatch(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Donation{}).
		Where("id = ? AND status = ? AND expiry_notification_sent = ?", id, models.DonationAvailable, false).
		Updates(map[string]interface{}{
			"expiry_notification_sent": true,
			"expiry_warning_time":      at,
		})
	return res.RowsAffected, res.Error
}

// UpdateUrgency only touches donations that are still available.
func (r *DonationRepository) UpdateUrgency(ctx context.Context, id uuid.UUID, level models.UrgencyLevel) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Donation{}).
		Where("id = ? AND status = ? AND marked_as_expired = ?", id, models.DonationAvailable, false).
		Update("urgency_level", level)
	return res.RowsAffected, res.Error
}

func (r *DonationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Donation{}).Error
}

func (r *DonationRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Donation{}).Count(&n).Error
	return n, err
}

type groupRow struct {
	GroupKey string
	Total    int64
}

func (r *DonationRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return groupCount(r.db.WithContext(ctx).Model(&models.Donation{}), "status")
}

// CountAvailableByUrgency groups available donations by their stored urgency level.
func (r *DonationRepository) CountAvailableByUrgency(ctx context.Context) (map[string]int64, error) {
	return groupCount(
		r.db.WithContext(ctx).Model(&models.Donation{}).Where("status = ?", models.DonationAvailable),
		"urgency_level",
	)
}

func groupCount(scope *gorm.DB, column string) (map[string]int64, error) {
	var rows []groupRow
	err := scope.Select(column + " AS group_key, COUNT(*) AS total").Group(column).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.GroupKey] = row.Total
	}
	return out, nil
}
