package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "Pending"
	RequestApproved  RequestStatus = "Approved"
	RequestRejected  RequestStatus = "Rejected"
	RequestCompleted RequestStatus = "Completed"
	RequestInTransit RequestStatus = "In Transit"
	RequestDelivered RequestStatus = "Delivered"
)

// requestTransitions is the full edge table; anything absent is illegal.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:   {RequestApproved, RequestRejected},
	RequestApproved:  {RequestInTransit, RequestCompleted},
	RequestInTransit: {RequestDelivered},
}

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected,
		RequestCompleted, RequestInTransit, RequestDelivered:
		return true
	}
	return false
}

func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s RequestStatus) IsTerminal() bool {
	return len(requestTransitions[s]) == 0
}

// DonorOnly statuses may only be set by the donation owner.
func (s RequestStatus) DonorOnly() bool {
	return s == RequestApproved || s == RequestRejected
}

type DeliveryMethod string

const (
	DeliveryPickup     DeliveryMethod = "Pickup by Recipient"
	DeliveryByDonor    DeliveryMethod = "Delivery by Donor"
	DeliveryNotDecided DeliveryMethod = "Not Decided"
)

func (m DeliveryMethod) Valid() bool {
	return m == DeliveryPickup || m == DeliveryByDonor || m == DeliveryNotDecided
}

type Coordinates struct {
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`
}

// TrackingStatus timestamps are each written at most once.
type TrackingStatus struct {
	Accepted  *time.Time `json:"accepted,omitempty"`
	InTransit *time.Time `json:"inTransit,omitempty"`
	Delivered *time.Time `json:"delivered,omitempty"`
}

type Request struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DonationID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_request_donation_recipient,priority:1" json:"donationId"`
	DonorID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"donorId"`
	RecipientID         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_request_donation_recipient,priority:2;index" json:"recipientId"`
	Status              RequestStatus  `gorm:"type:varchar(20);not null;default:'Pending';index" json:"status"`
	RequestedQuantity   *float64       `json:"requestedQuantity,omitempty"`
	SpecialRequirements string         `gorm:"type:text" json:"specialRequirements,omitempty"`
	PickupTime          *time.Time     `json:"pickupTime,omitempty"`
	DeliveryMethod      DeliveryMethod `gorm:"type:varchar(30);not null;default:'Not Decided'" json:"deliveryMethod"`
	DeliveryAddress     string         `gorm:"type:text" json:"deliveryAddress,omitempty"`
	RecipientLocation   Coordinates    `gorm:"embedded;embeddedPrefix:recipient_" json:"recipientLocation"`
	TrackingStatus      TrackingStatus `gorm:"embedded;embeddedPrefix:tracking_" json:"trackingStatus"`
	ContactShared       bool           `gorm:"not null;default:false" json:"contactShared"`
	CreatedAt           time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

func (r *Request) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RequestPending
	}
	if r.DeliveryMethod == "" {
		r.DeliveryMethod = DeliveryNotDecided
	}
	return nil
}

// IsParticipant reports whether userID is the donor or the recipient of the request.
func (r *Request) IsParticipant(userID uuid.UUID) bool {
	return r.DonorID == userID || r.RecipientID == userID
}

// RequestView is a request with its donation and both parties attached.
type RequestView struct {
	Request
	Donation  *DonationSummary `json:"donation,omitempty"`
	Donor     *UserContact     `json:"donor,omitempty"`
	Recipient *UserContact     `json:"recipient,omitempty"`
}
