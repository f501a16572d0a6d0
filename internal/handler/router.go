package handler

import (
	"time"

	"github.com/Baaaki/mealmender/internal/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	JWTSecret    string
	Users        middleware.UserLookup
	CORSOrigins  []string
	IsProduction bool
	// RateLimiter is optional; requests are not limited without Redis.
	RateLimiter *middleware.RateLimiter
}

type Handlers struct {
	Auth          *AuthHandler
	Profile       *ProfileHandler
	Donations     *DonationHandler
	Requests      *RequestHandler
	Messages      *MessageHandler
	Notifications *NotificationHandler
	Admin         *AdminHandler
	WebSocket     *WebSocketHandler
	Health        *HealthHandler
}

func NewRouter(cfg RouterConfig, h Handlers) *gin.Engine {
	configureBinding()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.HSTSMiddleware(cfg.IsProduction))

	if h.Health != nil {
		router.GET("/health", h.Health.Check)
	}

	api := router.Group("/api")
	if cfg.RateLimiter != nil {
		api.Use(cfg.RateLimiter.Middleware())
	}
	auth := middleware.AuthMiddleware(cfg.JWTSecret, cfg.Users)

	// Public routes
	api.POST("/auth/signup", h.Auth.Signup)
	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/logout", h.Auth.Logout)
	api.GET("/donations", h.Donations.List)

	protected := api.Group("", auth)
	{
		protected.GET("/profile/me", h.Profile.Me)
		protected.PUT("/profile/me", h.Profile.UpdateMe)
		protected.PUT("/profile/role", h.Profile.SetRole)

		protected.POST("/donations", h.Donations.Create)
		protected.GET("/donations/my-donations", h.Donations.Mine)
		protected.GET("/donations/:id", h.Donations.Get)
		protected.PUT("/donations/:id", h.Donations.Update)
		protected.DELETE("/donations/:id", h.Donations.Delete)

		protected.POST("/requests/claim/:donationId", h.Requests.Claim)
		protected.GET("/requests/my-requests", h.Requests.MyRequests)
		protected.GET("/requests/for-me", h.Requests.ForMe)
		protected.GET("/requests/:id", h.Requests.Get)
		protected.PUT("/requests/:id/status", h.Requests.UpdateStatus)

		protected.GET("/messages/:requestId", h.Messages.History)
		protected.POST("/messages", h.Messages.Post)

		protected.GET("/notifications", h.Notifications.List)
		protected.PUT("/notifications/:id/read", h.Notifications.MarkRead)

		protected.GET("/ws", h.WebSocket.HandleWebSocket)
	}

	admin := api.Group("/admin", auth, middleware.AdminMiddleware())
	{
		admin.GET("/stats", h.Admin.Stats)
		admin.GET("/users", h.Admin.Users)
		admin.GET("/donations", h.Admin.Donations)
		admin.DELETE("/users/:id", h.Admin.DeleteUser)
		admin.PUT("/users/:id/role", h.Admin.SetUserRole)
		admin.DELETE("/donations/:id", h.Admin.DeleteDonation)
		admin.POST("/expiry/sweep", h.Admin.RunExpirySweep)
	}

	return router
}
