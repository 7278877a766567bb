// Package apperr defines the error taxonomy shared by the booking engine and
// its HTTP surface. Every error returned across package boundaries wraps one
// of the sentinels below so callers can branch with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed input rejected before touching storage.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing provider, service, booking or block.
	ErrNotFound = errors.New("not found")

	// ErrSlotUnavailable is returned when the requested interval conflicts with
	// the schedule, a block or another booking, including lost races.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrInvalidToken is returned when a capability token does not match or the
	// booking is not in a state where the token can be honored.
	ErrInvalidToken = errors.New("invalid token")

	// ErrPolicyViolation marks a well-formed request that breaks a business rule.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrForbidden is returned when an authenticated caller may not act on a resource.
	ErrForbidden = errors.New("forbidden")
)

// Validation wraps ErrValidation with a message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound for the named resource.
func NotFound(resource string) error {
	return fmt.Errorf("%s %w", resource, ErrNotFound)
}

// SlotUnavailable wraps ErrSlotUnavailable with a reason.
func SlotUnavailable(reason string) error {
	return fmt.Errorf("%w: %s", ErrSlotUnavailable, reason)
}

// InvalidToken wraps ErrInvalidToken with a reason.
func InvalidToken(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidToken, reason)
}

// PolicyViolation wraps ErrPolicyViolation with a reason.
func PolicyViolation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPolicyViolation, fmt.Sprintf(format, args...))
}

// Forbidden wraps ErrForbidden with a reason.
func Forbidden(reason string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, reason)
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrPolicyViolation):
		return "policy_violation"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps err onto a response status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSlotUnavailable):
		return http.StatusConflict
	case errors.Is(err, ErrPolicyViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
