package service

import (
	"context"
	"time"

	"github.com/Baaaki/mealmender/internal/chat"
	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/repository"
	"github.com/Baaaki/mealmender/internal/testutil"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// serviceSuite wires every service over one in-memory SQLite database.
type serviceSuite struct {
	suite.Suite
	testDB *testutil.TestDatabase
	db     *gorm.DB
	store  *repository.Store
	ctx    context.Context

	auth          *AuthService
	profiles      *ProfileService
	donations     *DonationService
	requests      *RequestService
	notifications *NotificationService
	expiry        *ExpiryService
	admin         *AdminService
	hub           *chat.Hub
	chat          *ChatService

	donor     *models.User
	recipient *models.User
	other     *models.User
}

func (s *serviceSuite) SetupSuite() {
	s.testDB = testutil.SetupTestDatabase(s.T())
	s.db = s.testDB.DB
	s.store = repository.NewStore(s.db)
	s.ctx = context.Background()
}

func (s *serviceSuite) TearDownSuite() {
	s.testDB.Teardown(s.T())
}

func (s *serviceSuite) SetupTest() {
	testutil.CleanDatabase(s.T(), s.db)

	s.auth = NewAuthService(s.store, "test-secret", time.Hour)
	s.profiles = NewProfileService(s.store, s.auth)
	s.donations = NewDonationService(s.store)
	s.requests = NewRequestService(s.store)
	s.notifications = NewNotificationService(s.store)
	s.expiry = NewExpiryService(s.store, s.notifications, time.Minute)
	s.admin = NewAdminService(s.store, s.donations, s.expiry)
	s.hub = chat.NewHub()
	s.chat = NewChatService(s.store, s.hub, nil)

	s.donor = testutil.CreateUser(s.T(), s.db, "donor", models.RoleDonor)
	s.recipient = testutil.CreateUser(s.T(), s.db, "recipient", models.RoleRecipient)
	s.other = testutil.CreateUser(s.T(), s.db, "other", models.RoleRecipient)
}

func (s *serviceSuite) reloadDonation(d *models.Donation) *models.Donation {
	return testutil.Reload[models.Donation](s.T(), s.db, d.ID)
}

func (s *serviceSuite) reloadRequest(r *models.Request) *models.Request {
	return testutil.Reload[models.Request](s.T(), s.db, r.ID)
}

func (s *serviceSuite) count(model interface{}, query string, args ...interface{}) int64 {
	var n int64
	s.Require().NoError(s.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func isDuplicate(err error) bool {
	return repository.IsDuplicateKey(err)
}
