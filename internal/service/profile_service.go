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

// ProfilePatch lists every field a user may change on their own profile.
type ProfilePatch struct {
	FirstName *string    `json:"firstName"`
	LastName  *string    `json:"lastName"`
	Email     *string    `json:"email"`
	Phone     *string    `json:"phone"`
	Address   *string    `json:"address"`
	DOB       *time.Time `json:"dob"`
	Gender    *string    `json:"gender"`
}

type ProfileService struct {
	store *repository.Store
	auth  *AuthService
}

func NewProfileService(store *repository.Store, auth *AuthService) *ProfileService {
	return &ProfileService{store: store, auth: auth}
}

func (s *ProfileService) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, errInternal(err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *ProfileService) Update(ctx context.Context, userID uuid.UUID, patch ProfilePatch) (*models.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if patch.FirstName != nil {
		v := strings.TrimSpace(*patch.FirstName)
		if v == "" {
			return nil, apperror.InvalidArgument("firstName cannot be empty")
		}
		fields["first_name"] = v
	}
	if patch.LastName != nil {
		v := strings.TrimSpace(*patch.LastName)
		if v == "" {
			return nil, apperror.InvalidArgument("lastName cannot be empty")
		}
		fields["last_name"] = v
	}
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		if !emailRegex.MatchString(email) {
			return nil, apperror.InvalidArgument("invalid email format")
		}
		if email != user.Email {
			other, err := s.store.Users.GetByEmail(ctx, email)
			if err != nil {
				return nil, errInternal(err)
			}
			if other != nil {
				return nil, ErrEmailAlreadyExists
			}
		}
		fields["email"] = email
	}
	if patch.Phone != nil {
		fields["phone"] = strings.TrimSpace(*patch.Phone)
	}
	if patch.Address != nil {
		fields["address"] = strings.TrimSpace(*patch.Address)
	}
	if patch.DOB != nil {
		fields["dob"] = *patch.DOB
	}
	if patch.Gender != nil {
		fields["gender"] = *patch.Gender
	}

	if len(fields) == 0 {
		return user, nil
	}

	if err := s.store.Users.UpdateFields(ctx, userID, fields); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, ErrEmailAlreadyExists
		}
		logger.Log.Error("Failed to update profile", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, errInternal(err)
	}

	logger.Log.Info("Profile updated",
		zap.String("user_id", userID.String()),
		zap.Int("fields", len(fields)),
	)

	return s.Get(ctx, userID)
}

// SetRole toggles the caller between user, donor and recipient and returns a
// token carrying the new role. Admins change roles through the admin panel.
func (s *ProfileService) SetRole(ctx context.Context, userID uuid.UUID, role models.Role) (*Session, error) {
	if !role.SelfAssignable() {
		return nil, ErrInvalidRole
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleAdmin {
		return nil, apperror.Forbidden("administrators change roles through the admin panel")
	}

	if user.Role != role {
		if err := s.store.Users.UpdateFields(ctx, userID, map[string]interface{}{"role": role}); err != nil {
			return nil, errInternal(err)
		}
		logger.Log.Info("Role updated",
			zap.String("user_id", userID.String()),
			zap.String("from", string(user.Role)),
			zap.String("to", string(role)),
		)
		user.Role = role
	}

	token, err := s.auth.IssueToken(user)
	if err != nil {
		return nil, errInternal(err)
	}
	return &Session{User: user, Token: token}, nil
}
