package mission

import (
	"errors"
	"strings"
)

// Status is a mission status as stored in the `mission_status` table.
type Status string

const (
	StatusRequested  Status = "REQUESTED"
	StatusOffered    Status = "OFFERED"
	StatusBooked     Status = "BOOKED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

var ErrInvalidStatus = errors.New("invalid mission status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed mission status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusRequested, StatusOffered, StatusBooked, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo specifies if the status can transition to the next status.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusRequested:
		return next == StatusOffered || next == StatusCancelled

	case StatusOffered:
		// an expired offer falls back to REQUESTED for re-offering
		return next == StatusBooked || next == StatusRequested || next == StatusCancelled

	case StatusBooked:
		return next == StatusInProgress || next == StatusCancelled

	case StatusInProgress:
		return next == StatusCompleted || next == StatusCancelled

	default:
		return false
	}
}

// Terminal reports whether the status is a terminal state.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusCancelled
}
