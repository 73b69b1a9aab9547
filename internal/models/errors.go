package models

import "errors"

var (
	ErrValidation            = errors.New("validation error")
	ErrNotFound              = errors.New("not found")
	ErrNoTechnicianAvailable = errors.New("no technician available")
	ErrNotificationDelivery  = errors.New("notification delivery failed")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrSessionClosed         = errors.New("call session closed")
	ErrClassifierUnavailable = errors.New("classifier unavailable")
)
