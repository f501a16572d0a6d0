package handler

import (
	"net/http"

	"github.com/Baaaki/mealmender/internal/middleware"
	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/service"
	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	profileService *service.ProfileService
}

func NewProfileHandler(profileService *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

// GET /api/profile/me
func (h *ProfileHandler) Me(c *gin.Context) {
	user, err := h.profileService.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// PUT /api/profile/me
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	var patch service.ProfilePatch
	if !bindJSON(c, &patch) {
		return
	}

	user, err := h.profileService.Update(c.Request.Context(), middleware.UserID(c), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type setRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

// SetRole switches between user, donor and recipient and returns a new token.
// PUT /api/profile/role
func (h *ProfileHandler) SetRole(c *gin.Context) {
	var req setRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	sess, err := h.profileService.SetRole(c.Request.Context(), middleware.UserID(c), req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(sess))
}
