package handler

import (
	"net/http"

	"github.com/Baaaki/mealmender/internal/middleware"
	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/service"
	"github.com/Baaaki/mealmender/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminHandler struct {
	adminService *service.AdminService
}

func NewAdminHandler(adminService *service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// GET /api/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.adminService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GET /api/admin/users?pageNumber=N
func (h *AdminHandler) Users(c *gin.Context) {
	page, err := h.adminService.ListUsers(c.Request.Context(), pageNumber(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GET /api/admin/donations?pageNumber=N
func (h *AdminHandler) Donations(c *gin.Context) {
	page, err := h.adminService.ListDonations(c.Request.Context(), pageNumber(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// DELETE /api/admin/users/:id
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	adminID := middleware.UserID(c)
	logger.Log.Info("Admin removing user",
		zap.String("admin_id", adminID.String()),
		zap.String("target_user_id", id.String()),
	)

	if err := h.adminService.DeleteUser(c.Request.Context(), adminID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User removed"})
}

// DELETE /api/admin/donations/:id
func (h *AdminHandler) DeleteDonation(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.adminService.DeleteDonation(c.Request.Context(), middleware.UserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Donation removed"})
}

type adminRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

// PUT /api/admin/users/:id/role
func (h *AdminHandler) SetUserRole(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req adminRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.adminService.SetUserRole(c.Request.Context(), middleware.UserID(c), id, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// RunExpirySweep runs the expiry sweep now instead of waiting for the ticker.
// POST /api/admin/expiry/sweep
func (h *AdminHandler) RunExpirySweep(c *gin.Context) {
	res, err := h.adminService.RunExpirySweep(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
