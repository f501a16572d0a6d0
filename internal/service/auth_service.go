package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/repository"
	"github.com/Baaaki/mealmender/internal/utils"
	"github.com/Baaaki/mealmender/pkg/apperror"
	"github.com/Baaaki/mealmender/pkg/logger"
	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type SignupInput struct {
	FirstName string      `json:"firstName" binding:"required"`
	LastName  string      `json:"lastName" binding:"required"`
	Email     string      `json:"email" binding:"required"`
	Username  string      `json:"username" binding:"required"`
	Password  string      `json:"password" binding:"required"`
	DOB       *time.Time  `json:"dob"`
	Gender    string      `json:"gender"`
	Role      models.Role `json:"role"`
}

type LoginInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

// Session is what signup and login hand back to the client.
type Session struct {
	User  *models.User
	Token string
}

type AuthService struct {
	store         *repository.Store
	jwtSecret     string
	jwtExpiration time.Duration
	now           func() time.Time
}

func NewAuthService(store *repository.Store, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		store:         store,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	start := time.Now()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	logger.Log.Debug("Processing signup",
		zap.String("username", in.Username),
		zap.String("email", in.Email),
	)

	if err := validateSignup(&in); err != nil {
		logger.Log.Warn("Signup validation failed",
			zap.String("username", in.Username),
			zap.Error(err),
		)
		return nil, err
	}

	existing, err := s.store.Users.GetByEmail(ctx, in.Email)
	if err != nil {
		logger.Log.Error("Failed to check email existence", zap.String("email", in.Email), zap.Error(err))
		return nil, errInternal(err)
	}
	if existing != nil {
		logger.Log.Warn("Email already exists", zap.String("email", in.Email))
		return nil, ErrEmailAlreadyExists
	}

	existing, err = s.store.Users.GetByUsername(ctx, in.Username)
	if err != nil {
		logger.Log.Error("Failed to check username existence", zap.String("username", in.Username), zap.Error(err))
		return nil, errInternal(err)
	}
	if existing != nil {
		logger.Log.Warn("Username already exists", zap.String("username", in.Username))
		return nil, ErrUsernameAlreadyExists
	}

	hashStart := time.Now()
	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		logger.Log.Error("Failed to hash password", zap.Error(err))
		return nil, errInternal(err)
	}
	hashDuration := time.Since(hashStart)

	user := &models.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		DOB:          in.DOB,
		Gender:       in.Gender,
		Role:         in.Role,
	}

	if err := s.store.Users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent signup for the same username or email.
		if repository.IsDuplicateKey(err) {
			return nil, apperror.Conflict("a user with that email or username already exists")
		}
		logger.Log.Error("Failed to create user", zap.String("username", in.Username), zap.Error(err))
		return nil, errInternal(err)
	}

	token, err := utils.GenerateToken(user, s.jwtSecret, s.jwtExpiration)
	if err != nil {
		logger.Log.Error("Failed to generate JWT token", zap.String("user_id", user.ID.String()), zap.Error(err))
		return nil, errInternal(err)
	}

	logger.Log.Info("User signed up",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)),
		zap.Duration("hash_duration", hashDuration),
		zap.Duration("total_duration", time.Since(start)),
	)

	return &Session{User: user, Token: token}, nil
}

// Login accepts either the username or the email as identifier.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	start := time.Now()

	identifier := strings.TrimSpace(in.Username)
	if identifier == "" {
		identifier = strings.ToLower(strings.TrimSpace(in.Email))
	}
	if in.Password == "" {
		return nil, apperror.InvalidArgument("password is required")
	}
	if identifier == "" {
		return nil, apperror.InvalidArgument("username or email is required")
	}

	user, err := s.store.Users.GetByLogin(ctx, identifier)
	if err != nil {
		logger.Log.Error("Failed to look up user", zap.String("identifier", identifier), zap.Error(err))
		return nil, errInternal(err)
	}
	if user == nil {
		logger.Log.Warn("Login failed: user not found", zap.String("identifier", identifier))
		return nil, ErrInvalidCredentials
	}

	verifyStart := time.Now()
	ok, err := utils.VerifyPassword(in.Password, user.PasswordHash)
	if err != nil {
		logger.Log.Error("Failed to verify password", zap.String("user_id", user.ID.String()), zap.Error(err))
		return nil, errInternal(err)
	}
	if !ok {
		logger.Log.Warn("Login failed: invalid password", zap.String("user_id", user.ID.String()))
		return nil, ErrInvalidCredentials
	}
	verifyDuration := time.Since(verifyStart)

	now := s.now()
	if err := s.store.Users.TouchLastLogin(ctx, user.ID, now); err != nil {
		// Not fatal for the login itself.
		logger.Log.Warn("Failed to update last login", zap.String("user_id", user.ID.String()), zap.Error(err))
	} else {
		user.LastLogin = &now
	}

	token, err := utils.GenerateToken(user, s.jwtSecret, s.jwtExpiration)
	if err != nil {
		logger.Log.Error("Failed to generate JWT token", zap.String("user_id", user.ID.String()), zap.Error(err))
		return nil, errInternal(err)
	}

	logger.Log.Info("User logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.Duration("password_verify_duration", verifyDuration),
		zap.Duration("total_duration", time.Since(start)),
	)

	return &Session{User: user, Token: token}, nil
}

// IssueToken signs a fresh token, used after a role change.
func (s *AuthService) IssueToken(user *models.User) (string, error) {
	return utils.GenerateToken(user, s.jwtSecret, s.jwtExpiration)
}

func validateSignup(in *SignupInput) error {
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" ||
		in.Email == "" || in.Username == "" || in.Password == "" {
		return apperror.InvalidArgument("please provide all required fields: firstName, lastName, email, username, and password")
	}
	if len(in.Username) < 3 || len(in.Username) > 50 {
		return apperror.InvalidArgument("username must be between 3 and 50 characters")
	}
	if !emailRegex.MatchString(in.Email) || len(in.Email) > 100 {
		return apperror.InvalidArgument("invalid email format")
	}
	if len(in.Password) < 6 || len(in.Password) > 128 {
		return apperror.InvalidArgument("password must be between 6 and 128 characters")
	}

	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if !in.Role.SelfAssignable() {
		return ErrInvalidRole
	}
	return nil
}
