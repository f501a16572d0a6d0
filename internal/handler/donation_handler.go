package handler

import (
	"net/http"

	"github.com/Baaaki/mealmender/internal/middleware"
	"github.com/Baaaki/mealmender/internal/service"
	"github.com/gin-gonic/gin"
)

type DonationHandler struct {
	donationService *service.DonationService
}

func NewDonationHandler(donationService *service.DonationService) *DonationHandler {
	return &DonationHandler{donationService: donationService}
}

// POST /api/donations
func (h *DonationHandler) Create(c *gin.Context) {
	var req service.CreateDonationInput
	if !bindJSON(c, &req) {
		return
	}

	donation, err := h.donationService.Create(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, donation)
}

// List is public: available donations, most urgent first within the page.
// GET /api/donations?pageNumber=N
func (h *DonationHandler) List(c *gin.Context) {
	page, err := h.donationService.ListAvailable(c.Request.Context(), pageNumber(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GET /api/donations/my-donations
func (h *DonationHandler) Mine(c *gin.Context) {
	donations, err := h.donationService.ListByDonor(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, donations)
}

// GET /api/donations/:id
func (h *DonationHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	donation, err := h.donationService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, donation)
}

// PUT /api/donations/:id
func (h *DonationHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var patch service.DonationPatch
	if !bindJSON(c, &patch) {
		return
	}

	donation, err := h.donationService.Update(c.Request.Context(), id, middleware.UserID(c), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, donation)
}

// DELETE /api/donations/:id
func (h *DonationHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	actor := service.Actor{ID: middleware.UserID(c), Role: middleware.Role(c)}
	if err := h.donationService.Delete(c.Request.Context(), id, actor); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Donation removed"})
}
