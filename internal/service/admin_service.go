package service

import (
	"context"
	"time"

	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/repository"
	"github.com/Baaaki/mealmender/pkg/apperror"
	"github.com/Baaaki/mealmender/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserStats struct {
	Total        int64 `json:"total"`
	NewThisMonth int64 `json:"newThisMonth"`
	Admins       int64 `json:"admins"`
}

type DonationStats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"byStatus"`
}

type DashboardStats struct {
	Users     UserStats        `json:"users"`
	Donations DonationStats    `json:"donations"`
	Requests  map[string]int64 `json:"requests"`
	Urgency   map[string]int64 `json:"urgency"`
}

type UserPage struct {
	Users []*models.User `json:"users"`
	Page  int            `json:"page"`
	Pages int            `json:"pages"`
	Total int64          `json:"total"`
}

type AdminService struct {
	store     *repository.Store
	donations *DonationService
	expiry    *ExpiryService
	now       func() time.Time
}

func NewAdminService(store *repository.Store, donations *DonationService, expiry *ExpiryService) *AdminService {
	return &AdminService{
		store:     store,
		donations: donations,
		expiry:    expiry,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *AdminService) Stats(ctx context.Context) (*DashboardStats, error) {
	now := s.now()
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var stats DashboardStats
	var err error

	if stats.Users.Total, err = s.store.Users.Count(ctx); err != nil {
		return nil, errInternal(err)
	}
	if stats.Users.NewThisMonth, err = s.store.Users.CountSince(ctx, startOfMonth); err != nil {
		return nil, errInternal(err)
	}
	if stats.Users.Admins, err = s.store.Users.CountByRole(ctx, models.RoleAdmin); err != nil {
		return nil, errInternal(err)
	}
	if stats.Donations.Total, err = s.store.Donations.Count(ctx); err != nil {
		return nil, errInternal(err)
	}
	if stats.Donations.ByStatus, err = s.store.Donations.CountByStatus(ctx); err != nil {
		return nil, errInternal(err)
	}
	if stats.Requests, err = s.store.Requests.CountByStatus(ctx); err != nil {
		return nil, errInternal(err)
	}
	if stats.Urgency, err = s.expiry.UrgencyStats(ctx); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *AdminService) ListUsers(ctx context.Context, pageNumber int) (*UserPage, error) {
	page := repository.Page{Number: normalizePage(pageNumber), Size: AdminPageSize}
	users, total, err := s.store.Users.List(ctx, page)
	if err != nil {
		return nil, errInternal(err)
	}
	return &UserPage{Users: users, Page: page.Number, Pages: pageCount(total, page.Size), Total: total}, nil
}

func (s *AdminService) ListDonations(ctx context.Context, pageNumber int) (*DonationPage, error) {
	return s.donations.ListAll(ctx, pageNumber)
}

func (s *AdminService) DeleteDonation(ctx context.Context, adminID, donationID uuid.UUID) error {
	return s.donations.Delete(ctx, donationID, Actor{ID: adminID, Role: models.RoleAdmin})
}

// DeleteUser soft-deletes a user. The last remaining admin cannot be removed.
func (s *AdminService) DeleteUser(ctx context.Context, adminID, userID uuid.UUID) error {
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		user, err := tx.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}
		if user.Role == models.RoleAdmin {
			if err := ensureAnotherAdmin(ctx, tx, userID); err != nil {
				return err
			}
		}
		return tx.Users.SoftDelete(ctx, userID)
	})
	if err != nil {
		return s.adminError("Failed to delete user", userID, err)
	}

	logger.Log.Info("User removed by admin",
		zap.String("user_id", userID.String()),
		zap.String("admin_id", adminID.String()),
	)
	return nil
}

// SetUserRole changes any user's role. Demoting the last admin is refused;
// the admin rows are locked before the check and stay locked until the
// update commits.
func (s *AdminService) SetUserRole(ctx context.Context, adminID, userID uuid.UUID, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	var updated *models.User
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		user, err := tx.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}
		if user.Role == models.RoleAdmin && role != models.RoleAdmin {
			if err := ensureAnotherAdmin(ctx, tx, userID); err != nil {
				return err
			}
		}
		if user.Role != role {
			if err := tx.Users.UpdateFields(ctx, userID, map[string]interface{}{"role": role}); err != nil {
				return err
			}
		}
		user.Role = role
		updated = user
		return nil
	})
	if err != nil {
		return nil, s.adminError("Failed to change user role", userID, err)
	}

	logger.Log.Info("User role changed by admin",
		zap.String("user_id", userID.String()),
		zap.String("admin_id", adminID.String()),
		zap.String("role", string(role)),
	)
	return updated, nil
}

// RunExpirySweep triggers a sweep outside the schedule.
func (s *AdminService) RunExpirySweep(ctx context.Context) (SweepResult, error) {
	res, err := s.expiry.Sweep(ctx)
	if err != nil {
		return res, errInternal(err)
	}
	return res, nil
}

// ensureAnotherAdmin locks the admin rows and refuses when removing userID
// would leave none. It must run inside the transaction that writes the change.
func ensureAnotherAdmin(ctx context.Context, tx *repository.Store, userID uuid.UUID) error {
	ids, err := tx.Users.LockAdminIDs(ctx)
	if err != nil {
		return err
	}
	remaining := len(ids)
	for _, id := range ids {
		if id == userID {
			remaining--
		}
	}
	if remaining < 1 {
		return ErrLastAdmin
	}
	return nil
}

func (s *AdminService) adminError(msg string, userID uuid.UUID, err error) error {
	if apperror.CodeOf(err) != apperror.CodeInternal {
		return err
	}
	logger.Log.Error(msg, zap.String("user_id", userID.String()), zap.Error(err))
	return errInternal(err)
}
