package main

import (
	"context"
	"os"

	"github.com/Baaaki/mealmender/internal/config"
	"github.com/Baaaki/mealmender/internal/database"
	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/repository"
	"github.com/Baaaki/mealmender/internal/utils"
	"github.com/Baaaki/mealmender/pkg/logger"
	"go.uber.org/zap"
)

// seed creates the first admin account from ADMIN_USERNAME, ADMIN_EMAIL and
// ADMIN_PASSWORD. Running it again is a no-op.
func main() {
	cfg := config.Load()
	if err := logger.Init(true); err != nil {
		panic(err)
	}
	defer logger.Sync()

	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminUsername == "" || adminEmail == "" || adminPassword == "" {
		logger.Log.Fatal("Missing environment variables: ADMIN_USERNAME, ADMIN_EMAIL, ADMIN_PASSWORD")
	}

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Log.Fatal("Failed to migrate database", zap.Error(err))
	}

	ctx := context.Background()
	users := repository.NewUserRepository(db)

	existing, err := users.GetByEmail(ctx, adminEmail)
	if err != nil {
		logger.Log.Fatal("Failed to look up admin", zap.Error(err))
	}
	if existing != nil {
		logger.Log.Info("Admin user already exists",
			zap.String("username", existing.Username),
			zap.String("role", string(existing.Role)),
		)
		return
	}

	passwordHash, err := utils.HashPassword(adminPassword)
	if err != nil {
		logger.Log.Fatal("Failed to hash password", zap.Error(err))
	}

	admin := &models.User{
		FirstName:    "Site",
		LastName:     "Admin",
		Username:     adminUsername,
		Email:        adminEmail,
		PasswordHash: passwordHash,
		Role:         models.RoleAdmin,
	}
	if err := users.Create(ctx, admin); err != nil {
		logger.Log.Fatal("Failed to create admin", zap.Error(err))
	}

	logger.Log.Info("Admin user created",
		zap.String("username", admin.Username),
		zap.String("email", admin.Email),
	)
}
