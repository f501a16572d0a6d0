package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Baaaki/mealmender/internal/chat"
	"github.com/Baaaki/mealmender/internal/handler"
	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/repository"
	"github.com/Baaaki/mealmender/internal/service"
	"github.com/Baaaki/mealmender/internal/testutil"
	"github.com/Baaaki/mealmender/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

const testSecret = "test-secret-key"

// APIIntegrationTestSuite drives the full router over an in-memory database.
type APIIntegrationTestSuite struct {
	suite.Suite
	testDB *testutil.TestDatabase
	db     *gorm.DB
	router *gin.Engine

	donor     *models.User
	recipient *models.User
	other     *models.User
	admin     *models.User
}

func TestAPIIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(APIIntegrationTestSuite))
}

func (s *APIIntegrationTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	s.testDB = testutil.SetupTestDatabase(s.T())
	s.db = s.testDB.DB
	s.router = newRouter(s.db)
}

func (s *APIIntegrationTestSuite) TearDownSuite() {
	s.testDB.Teardown(s.T())
}

func (s *APIIntegrationTestSuite) SetupTest() {
	testutil.CleanDatabase(s.T(), s.db)
	s.donor = testutil.CreateUser(s.T(), s.db, "donor", models.RoleDonor)
	s.recipient = testutil.CreateUser(s.T(), s.db, "recipient", models.RoleRecipient)
	s.other = testutil.CreateUser(s.T(), s.db, "other", models.RoleRecipient)
	s.admin = testutil.CreateUser(s.T(), s.db, "admin", models.RoleAdmin)
}

// newRouter wires the production router over db without Redis.
func newRouter(db *gorm.DB) *gin.Engine {
	store := repository.NewStore(db)
	auth := service.NewAuthService(store, testSecret, time.Hour)
	donations := service.NewDonationService(store)
	notifications := service.NewNotificationService(store)
	expiry := service.NewExpiryService(store, notifications, time.Minute)
	chatService := service.NewChatService(store, chat.NewHub(), nil)

	return handler.NewRouter(handler.RouterConfig{
		JWTSecret:   testSecret,
		Users:       store.Users,
		CORSOrigins: []string{"http://localhost:3000"},
	}, handler.Handlers{
		Auth:          handler.NewAuthHandler(auth, 3600, false),
		Profile:       handler.NewProfileHandler(service.NewProfileService(store, auth)),
		Donations:     handler.NewDonationHandler(donations),
		Requests:      handler.NewRequestHandler(service.NewRequestService(store)),
		Messages:      handler.NewMessageHandler(chatService),
		Notifications: handler.NewNotificationHandler(notifications),
		Admin:         handler.NewAdminHandler(service.NewAdminService(store, donations, expiry)),
		WebSocket:     handler.NewWebSocketHandler(chatService, []string{"http://localhost:3000"}),
		Health:        handler.NewHealthHandler(db, nil),
	})
}

func (s *APIIntegrationTestSuite) token(u *models.User) string {
	token, err := utils.GenerateToken(u, testSecret, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *APIIntegrationTestSuite) do(method, path string, as *models.User, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			s.Require().NoError(json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(as))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *APIIntegrationTestSuite) errorOf(w *httptest.ResponseRecorder) string {
	return decode[map[string]string](s.T(), w)["error"]
}

func (s *APIIntegrationTestSuite) TestHealth() {
	w := s.do(http.MethodGet, "/health", nil, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"database":"ok"`)
	s.Equal("nosniff", w.Header().Get("X-Content-Type-Options"))
}

func (s *APIIntegrationTestSuite) TestSignupAndLogin() {
	w := s.do(http.MethodPost, "/api/auth/signup", nil, map[string]string{
		"firstName": "New",
		"lastName":  "Person",
		"username":  "newuser",
		"email":     "newuser@example.com",
		"password":  "SecurePass123",
		"role":      "donor",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	body := decode[map[string]interface{}](s.T(), w)
	s.Equal("newuser", body["username"])
	s.Equal("donor", body["role"])
	s.NotEmpty(body["token"])
	s.NotContains(w.Body.String(), "password")

	var tokenCookie *http.Cookie
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "token" {
			tokenCookie = cookie
		}
	}
	s.Require().NotNil(tokenCookie)
	s.True(tokenCookie.HttpOnly)
	s.Equal(http.SameSiteLaxMode, tokenCookie.SameSite)

	w = s.do(http.MethodPost, "/api/auth/login", nil, map[string]string{
		"email":    "newuser@example.com",
		"password": "SecurePass123",
	})
	s.Equal(http.StatusOK, w.Code)
	s.NotEmpty(decode[map[string]interface{}](s.T(), w)["token"])
}

func (s *APIIntegrationTestSuite) TestSignupRejections() {
	tests := []struct {
		name     string
		body     interface{}
		expected string
	}{
		{"duplicate email", map[string]string{
			"firstName": "A", "lastName": "B", "username": "fresh",
			"email": "donor@example.com", "password": "Pass123456",
		}, "email already exists"},
		{"duplicate username", map[string]string{
			"firstName": "A", "lastName": "B", "username": "donor",
			"email": "fresh@example.com", "password": "Pass123456",
		}, "username already exists"},
		{"missing fields", map[string]string{"username": "lonely"}, "required fields"},
		{"admin role", map[string]string{
			"firstName": "A", "lastName": "B", "username": "sneaky",
			"email": "sneaky@example.com", "password": "Pass123456", "role": "admin",
		}, "invalid role"},
		{"unknown field", `{"username":"x","isAdmin":true}`, "Invalid request body"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := s.do(http.MethodPost, "/api/auth/signup", nil, tt.body)
			s.Equal(http.StatusBadRequest, w.Code)
			s.Contains(s.errorOf(w), tt.expected)
		})
	}
}

func (s *APIIntegrationTestSuite) TestLoginInvalidCredentials() {
	w := s.do(http.MethodPost, "/api/auth/login", nil, map[string]string{
		"username": "donor",
		"password": "WrongPass123",
	})
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Contains(s.errorOf(w), "invalid username or password")
}

func (s *APIIntegrationTestSuite) TestProtectedRoutesRequireToken() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/profile/me", nil, nil).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/api/donations", nil, map[string]string{}).Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/api/admin/stats", s.donor, nil).Code)
}

func (s *APIIntegrationTestSuite) TestProfile() {
	w := s.do(http.MethodGet, "/api/profile/me", s.donor, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.NotContains(w.Body.String(), "passwordHash")
	s.Contains(w.Body.String(), `"username":"donor"`)

	w = s.do(http.MethodPut, "/api/profile/me", s.donor, map[string]string{"phone": "555-0199"})
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "555-0199")

	w = s.do(http.MethodPut, "/api/profile/me", s.donor, `{"role":"admin"}`)
	s.Equal(http.StatusBadRequest, w.Code, "role is not part of the profile patch")

	w = s.do(http.MethodPut, "/api/profile/me", s.donor, map[string]string{"email": "recipient@example.com"})
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodPut, "/api/profile/role", s.recipient, map[string]string{"role": "donor"})
	s.Equal(http.StatusOK, w.Code)
	s.Equal("donor", decode[map[string]interface{}](s.T(), w)["role"])
}

func (s *APIIntegrationTestSuite) TestDonationLifecycle() {
	w := s.do(http.MethodPost, "/api/donations", s.donor, map[string]interface{}{
		"foodName": "Bread rolls",
		"quantity": "40 pieces",
		"quality":  "Fresh",
		"type":     "Bakery",
		"expiry":   time.Now().Add(90 * time.Minute).Format(time.RFC3339),
		"pickupLocation": map[string]interface{}{
			"address": "3 Baker Street",
		},
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Donation](s.T(), w)
	s.Equal(models.UrgencyLevel("urgent"), created.UrgencyLevel)

	w = s.do(http.MethodGet, "/api/donations", nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	page := decode[service.DonationPage](s.T(), w)
	s.Equal(1, page.Pages)
	s.Require().Len(page.Donations, 1)
	s.Equal("donor", page.Donations[0].Donor.Username)

	w = s.do(http.MethodGet, "/api/donations/"+created.ID.String(), s.recipient, nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodPut, "/api/donations/"+created.ID.String(), s.recipient, map[string]string{"foodName": "Mine now"})
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPut, "/api/donations/"+created.ID.String(), s.donor, `{"status":"delivered"}`)
	s.Equal(http.StatusBadRequest, w.Code, "status is not editable")

	w = s.do(http.MethodPut, "/api/donations/"+created.ID.String(), s.donor, map[string]string{"notes": "Side door"})
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "Side door")

	w = s.do(http.MethodGet, "/api/donations/my-donations", s.donor, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Len(decode[[]models.Donation](s.T(), w), 1)

	w = s.do(http.MethodDelete, "/api/donations/"+created.ID.String(), s.donor, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/donations/"+created.ID.String(), s.donor, nil).Code)

	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/donations/not-a-uuid", s.donor, nil).Code)
}

func (s *APIIntegrationTestSuite) TestCreateDonationExpiryInPast() {
	w := s.do(http.MethodPost, "/api/donations", s.donor, map[string]interface{}{
		"foodName": "Old soup",
		"quantity": "1 pot",
		"quality":  "OK",
		"type":     "Cooked",
		"expiry":   time.Now().Add(-time.Hour).Format(time.RFC3339),
	})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(s.errorOf(w), "expiry")
}

func (s *APIIntegrationTestSuite) TestClaimApproveAndDeliver() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)
	path := "/api/requests/claim/" + d.ID.String()

	s.Equal(http.StatusForbidden, s.do(http.MethodPost, path, s.donor, nil).Code)

	w := s.do(http.MethodPost, path, s.recipient, map[string]interface{}{
		"requestedQuantity": 5,
		"deliveryMethod":    "Pickup by Recipient",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	first := decode[models.Request](s.T(), w)
	s.Equal(models.RequestPending, first.Status)

	s.Equal(http.StatusConflict, s.do(http.MethodPost, path, s.recipient, nil).Code)

	w = s.do(http.MethodPost, path, s.other, nil)
	s.Require().Equal(http.StatusCreated, w.Code)
	second := decode[models.Request](s.T(), w)

	statusPath := "/api/requests/" + first.ID.String() + "/status"
	s.Equal(http.StatusForbidden, s.do(http.MethodPut, statusPath, s.recipient, map[string]string{"status": "Approved"}).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPut, statusPath, s.donor, map[string]string{"status": "Shipped"}).Code)

	w = s.do(http.MethodPut, statusPath, s.donor, map[string]string{"status": "Approved"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.True(decode[models.Request](s.T(), w).ContactShared)

	w = s.do(http.MethodGet, "/api/requests/my-requests", s.other, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	mine := decode[[]models.RequestView](s.T(), w)
	s.Require().Len(mine, 1)
	s.Equal(second.ID, mine[0].ID)
	s.Equal(models.RequestRejected, mine[0].Status)

	w = s.do(http.MethodGet, "/api/requests/my-requests", s.recipient, nil)
	views := decode[[]models.RequestView](s.T(), w)
	s.Require().Len(views, 1)
	s.Equal(s.donor.Email, views[0].Donor.Email, "contact is shared after approval")

	s.Equal(http.StatusConflict, s.do(http.MethodPut, statusPath, s.donor, map[string]string{"status": "Delivered"}).Code)
	s.Equal(http.StatusOK, s.do(http.MethodPut, statusPath, s.recipient, map[string]string{"status": "In Transit"}).Code)
	s.Equal(http.StatusOK, s.do(http.MethodPut, statusPath, s.donor, map[string]string{"status": "Delivered"}).Code)

	w = s.do(http.MethodGet, "/api/donations/"+d.ID.String(), s.donor, nil)
	s.Equal(models.DonationDelivered, decode[models.DonationView](s.T(), w).Status)

	w = s.do(http.MethodGet, "/api/requests/for-me", s.donor, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Len(decode[[]models.RequestView](s.T(), w), 2)

	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/api/requests/"+first.ID.String(), s.other, nil).Code)
}

func (s *APIIntegrationTestSuite) TestMessagesOverREST() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)
	r := testutil.CreateRequest(s.T(), s.db, d, s.recipient.ID, models.RequestPending)

	w := s.do(http.MethodPost, "/api/messages", s.recipient, map[string]string{
		"requestId": r.ID.String(),
		"content":   "Is it still warm?",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/messages/"+r.ID.String(), s.donor, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	history := decode[service.ChatHistory](s.T(), w)
	s.Require().Len(history.Messages, 1)
	s.Equal("Is it still warm?", history.Messages[0].Content)

	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/api/messages/"+r.ID.String(), s.other, nil).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/messages", s.recipient, map[string]string{"content": "no room"}).Code)
}

func (s *APIIntegrationTestSuite) TestAdminEndpoints() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID, testutil.WithExpiry(time.Now().Add(time.Hour)))

	w := s.do(http.MethodPost, "/api/admin/expiry/sweep", s.admin, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	sweep := decode[service.SweepResult](s.T(), w)
	s.Equal(1, sweep.Notified)

	w = s.do(http.MethodGet, "/api/notifications", s.donor, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"unread":1`)
	s.Contains(w.Body.String(), `"hoursLeft":`)

	w = s.do(http.MethodGet, "/api/admin/stats", s.admin, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	stats := decode[service.DashboardStats](s.T(), w)
	s.Equal(int64(4), stats.Users.Total)
	s.Equal(int64(1), stats.Urgency["urgent"])

	w = s.do(http.MethodGet, "/api/admin/users?pageNumber=1", s.admin, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(int64(4), decode[service.UserPage](s.T(), w).Total)

	s.Equal(http.StatusConflict, s.do(http.MethodDelete, "/api/admin/users/"+s.admin.ID.String(), s.admin, nil).Code)
	s.Equal(http.StatusConflict, s.do(http.MethodPut, "/api/admin/users/"+s.admin.ID.String()+"/role", s.admin, map[string]string{"role": "user"}).Code)

	w = s.do(http.MethodPut, "/api/admin/users/"+s.other.ID.String()+"/role", s.admin, map[string]string{"role": "donor"})
	s.Equal(http.StatusOK, w.Code)

	s.Equal(http.StatusOK, s.do(http.MethodDelete, "/api/admin/users/"+s.other.ID.String(), s.admin, nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodDelete, "/api/admin/donations/"+d.ID.String(), s.admin, nil).Code)

	w = s.do(http.MethodGet, "/api/admin/donations", s.admin, nil)
	s.Equal(int64(0), decode[service.DonationPage](s.T(), w).Total)
}

func (s *APIIntegrationTestSuite) TestNotificationMarkRead() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID, testutil.WithExpiry(time.Now().Add(time.Hour)))
	n := &models.Notification{UserID: s.donor.ID, DonationID: &d.ID, Type: models.NotificationExpiryWarning, Title: "t", Message: "m"}
	s.Require().NoError(s.db.Create(n).Error)

	s.Equal(http.StatusNotFound, s.do(http.MethodPut, "/api/notifications/"+n.ID.String()+"/read", s.recipient, nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodPut, "/api/notifications/"+n.ID.String()+"/read", s.donor, nil).Code)

	w := s.do(http.MethodGet, "/api/notifications", s.donor, nil)
	assert.Contains(s.T(), w.Body.String(), `"unread":0`)
}

func (s *APIIntegrationTestSuite) TestRequiredFieldsAreReportedByName() {
	w := s.do(http.MethodPost, "/api/donations", s.donor, map[string]string{"foodName": "Soup"})
	s.Require().Equal(http.StatusBadRequest, w.Code)
	msg := s.errorOf(w)
	s.Contains(msg, "required fields")
	s.Contains(msg, "quantity")
	s.Contains(msg, "expiry")
	s.NotContains(msg, "foodName")

	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)
	r := testutil.CreateRequest(s.T(), s.db, d, s.recipient.ID, models.RequestPending)
	w = s.do(http.MethodPut, "/api/requests/"+r.ID.String()+"/status", s.donor, map[string]string{})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(s.errorOf(w), "status")

	w = s.do(http.MethodPost, "/api/messages", s.recipient, map[string]string{"content": "hello"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(s.errorOf(w), "requestId")

	w = s.do(http.MethodPost, "/api/auth/login", nil, "")
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Request body is required", s.errorOf(w))
}

func (s *APIIntegrationTestSuite) TestDeletedUserTokenIsRejected() {
	s.Require().Equal(http.StatusOK, s.do(http.MethodDelete, "/api/admin/users/"+s.other.ID.String(), s.admin, nil).Code)

	w := s.do(http.MethodPost, "/api/donations", s.other, map[string]interface{}{
		"foodName": "Ghost stew",
		"quantity": "1 pot",
		"quality":  "Fresh",
		"type":     "Cooked",
		"expiry":   time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	})
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal(int64(0), s.countDonations(s.other))
}

func (s *APIIntegrationTestSuite) TestDemotedAdminLosesAdminRoutes() {
	promote := s.do(http.MethodPut, "/api/admin/users/"+s.other.ID.String()+"/role", s.admin, map[string]string{"role": "admin"})
	s.Require().Equal(http.StatusOK, promote.Code)

	// other's fixture token still says recipient; the stored role grants admin.
	demote := s.do(http.MethodPut, "/api/admin/users/"+s.admin.ID.String()+"/role", s.other, map[string]string{"role": "user"})
	s.Require().Equal(http.StatusOK, demote.Code)

	// admin's token still claims the admin role.
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/api/admin/stats", s.admin, nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/admin/stats", s.other, nil).Code)
}

func (s *APIIntegrationTestSuite) countDonations(donor *models.User) int64 {
	var n int64
	s.Require().NoError(s.db.Model(&models.Donation{}).Where("donor_id = ?", donor.ID).Count(&n).Error)
	return n
}
