package handler

import (
	"net/http"

	"github.com/Baaaki/mealmender/internal/middleware"
	"github.com/Baaaki/mealmender/internal/service"
	"github.com/Baaaki/mealmender/pkg/apperror"
	"github.com/Baaaki/mealmender/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService  *service.AuthService
	cookieMaxAge int
	isProduction bool
}

func NewAuthHandler(authService *service.AuthService, cookieMaxAge int, isProduction bool) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		cookieMaxAge: cookieMaxAge,
		isProduction: isProduction,
	}
}

// Signup creates an account and logs it in.
// POST /api/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req service.SignupInput
	if !bindJSON(c, &req) {
		return
	}

	logger.Log.Info("User signup attempt",
		zap.String("username", req.Username),
		zap.String("ip", c.ClientIP()),
	)

	sess, err := h.authService.Signup(c.Request.Context(), req)
	if err != nil {
		// Duplicates are reported as a plain bad request on this endpoint.
		if apperror.HasCode(err, apperror.CodeAlreadyExists) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respondError(c, err)
		return
	}

	h.setTokenCookie(c, sess.Token)
	c.JSON(http.StatusCreated, sessionResponse(sess))
}

// Login accepts {username|email, password}.
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginInput
	if !bindJSON(c, &req) {
		return
	}

	sess, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setTokenCookie(c, sess.Token)
	c.JSON(http.StatusOK, sessionResponse(sess))
}

// Logout clears the session cookie. Bearer tokens simply expire.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", h.isProduction, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// setTokenCookie mirrors the token into an HTTP-only cookie for browser clients.
func (h *AuthHandler) setTokenCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, token, h.cookieMaxAge, "/", "", h.isProduction, true)
}

func sessionResponse(sess *service.Session) gin.H {
	return gin.H{
		"id":       sess.User.ID,
		"username": sess.User.Username,
		"email":    sess.User.Email,
		"role":     sess.User.Role,
		"token":    sess.Token,
	}
}
