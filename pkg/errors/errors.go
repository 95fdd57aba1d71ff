package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrConflict
	ErrInternal
)

func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

// Machine-readable rejection reasons for booking attempts. Clients key off
// these strings to render messages and suggest alternate slots.
const (
	ReasonAtCapacity          = "at_capacity"
	ReasonTemporarilyReserved = "temporarily_reserved"
	ReasonAlreadyBooked       = "already_booked"
	ReasonBookingInProgress   = "booking_in_progress"
	ReasonSlotBlocked         = "slot_blocked"
)

// SlotUnavailableError is the expected, user-facing rejection of a booking
// attempt. A constraint violation at insert time is translated into this
// same type so a lost race is indistinguishable from a failed pre-check.
type SlotUnavailableError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot unavailable (%s): %s", e.Reason, e.Message)
}

func NewSlotUnavailable(reason, message string) *SlotUnavailableError {
	return &SlotUnavailableError{Reason: reason, Message: message}
}

// AsSlotUnavailable extracts a SlotUnavailableError from an error chain.
func AsSlotUnavailable(err error) (*SlotUnavailableError, bool) {
	var se *SlotUnavailableError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}
