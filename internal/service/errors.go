package service

import (
	"errors"

	"courier/internal/domain"
)

var (
	// ErrDeliveryUnavailable is returned when a delivery's precondition on
	// the contested resource failed (already assigned, past the expected
	// state). The caller may retry against a different delivery.
	ErrDeliveryUnavailable = errors.New("delivery unavailable")

	// ErrDriverUnavailable is returned when the driver cannot take the
	// action (not online, not verified, already assigned).
	ErrDriverUnavailable = errors.New("driver unavailable")

	// ErrInvalidRiderID is returned when rider ID is empty.
	ErrInvalidRiderID = errors.New("invalid rider id")

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidDeliveryID is returned when delivery ID is empty.
	ErrInvalidDeliveryID = errors.New("invalid delivery id")

	// ErrInvalidPaymentMethod is returned when payment method is unknown.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// ErrInvalidRating is returned when a rating is outside [1, 5].
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrNotDeliveryDriver is returned when a driver acts on a delivery
	// assigned to someone else.
	ErrNotDeliveryDriver = errors.New("driver not assigned to this delivery")

	// ErrNotDeliveryRider is returned when a rider acts on a delivery
	// they did not request.
	ErrNotDeliveryRider = errors.New("rider did not request this delivery")
)

// ValidatePaymentMethod validates a payment method string, defaulting empty
// input to cash.
func ValidatePaymentMethod(method string) (domain.PaymentMethod, error) {
	switch domain.PaymentMethod(method) {
	case domain.PaymentMethodCash, domain.PaymentMethodCard,
		domain.PaymentMethodWallet, domain.PaymentMethodTransfer:
		return domain.PaymentMethod(method), nil
	case "":
		return domain.PaymentMethodCash, nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}
