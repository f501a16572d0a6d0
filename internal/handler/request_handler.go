package handler

import (
	"net/http"

	"github.com/Baaaki/mealmender/internal/middleware"
	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/service"
	"github.com/gin-gonic/gin"
)

type RequestHandler struct {
	requestService *service.RequestService
}

func NewRequestHandler(requestService *service.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

// Claim opens a Pending request on an available donation. The body is optional.
// POST /api/requests/claim/:donationId
func (h *RequestHandler) Claim(c *gin.Context) {
	donationID, ok := uuidParam(c, "donationId")
	if !ok {
		return
	}

	var req service.ClaimInput
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	created, err := h.requestService.Claim(c.Request.Context(), donationID, middleware.UserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GET /api/requests/my-requests
func (h *RequestHandler) MyRequests(c *gin.Context) {
	views, err := h.requestService.ListMine(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// GET /api/requests/for-me
func (h *RequestHandler) ForMe(c *gin.Context) {
	views, err := h.requestService.ListForMe(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// GET /api/requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	view, err := h.requestService.Get(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type statusRequest struct {
	Status models.RequestStatus `json:"status" binding:"required"`
}

// PUT /api/requests/:id/status
func (h *RequestHandler) UpdateStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}

	updated, err := h.requestService.SetStatus(c.Request.Context(), id, middleware.UserID(c), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
