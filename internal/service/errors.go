package service

import "github.com/Baaaki/mealmender/pkg/apperror"

var (
	ErrUserNotFound          = apperror.NotFound("user not found")
	ErrEmailAlreadyExists    = apperror.Conflict("a user with that email already exists")
	ErrUsernameAlreadyExists = apperror.Conflict("a user with that username already exists")
	ErrInvalidCredentials    = apperror.Unauthenticated("invalid username or password")
	ErrInvalidRole           = apperror.InvalidArgument("invalid role")
	ErrLastAdmin             = apperror.InvalidState("cannot remove the last admin")

	ErrDonationNotFound     = apperror.NotFound("donation not found")
	ErrDonationNotOwned     = apperror.Forbidden("not authorized to modify this donation")
	ErrDonationNotAvailable = apperror.InvalidState("this donation is no longer available")
	ErrExpiryInPast         = apperror.InvalidArgument("expiry must be in the future")

	ErrRequestNotFound    = apperror.NotFound("request not found")
	ErrSelfClaim          = apperror.Forbidden("you cannot claim your own donation")
	ErrAlreadyRequested   = apperror.Conflict("you have already requested this donation")
	ErrNotParticipant     = apperror.Forbidden("not authorized to access this request")
	ErrDonorOnlyStatus    = apperror.Forbidden("only the donor can approve or reject a request")
	ErrInvalidStatus      = apperror.InvalidArgument("invalid status")
	ErrIllegalTransition  = apperror.InvalidState("status change not allowed from the current status")
	ErrConcurrentUpdate   = apperror.InvalidState("request was modified concurrently")
	ErrNotificationAbsent = apperror.NotFound("notification not found")
)

func errInternal(cause error) error {
	return apperror.Internal("internal server error", cause)
}
