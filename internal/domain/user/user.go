package user

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// User is the single identity record for every marketplace participant.
// Role-specific data lives in optional fields on this one struct rather
// than in per-role subtypes.
type User struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	Email       string
	FirstName   string
	LastName    string
	PhoneNumber string
	Role        Role
	Status      Status

	// Driver-only fields; zero for clients and admins.
	LicenseNumber string
	TruckID       string
}

var (
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrMissingName   = errors.New("first and last name are required")
	ErrBadTimestamps = errors.New("updated_at cannot be before created_at")
)

// NewUser constructs a new User entity. The caller provides the ID (UUID as
// string); credentials live with the external identity provider, not here.
func NewUser(email, firstName, lastName, phone string, role Role) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		CreatedAt:   now,
		UpdatedAt:   now,
		Email:       strings.TrimSpace(email),
		FirstName:   strings.TrimSpace(firstName),
		LastName:    strings.TrimSpace(lastName),
		PhoneNumber: strings.TrimSpace(phone),
		Role:        role,
		Status:      StatusActive,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}

	return user, nil
}

// Validate checks invariants of the User entity.
func (user *User) Validate() error {
	if _, err := mail.ParseAddress(user.Email); err != nil {
		return ErrInvalidEmail
	}
	if user.FirstName == "" || user.LastName == "" {
		return ErrMissingName
	}
	if !user.Role.Valid() {
		return ErrInvalidRole
	}
	if !user.Status.Valid() {
		return ErrInvalidStatus
	}
	if !user.CreatedAt.IsZero() && !user.UpdatedAt.IsZero() && user.UpdatedAt.Before(user.CreatedAt) {
		return ErrBadTimestamps
	}
	return nil
}

// ----- Setters and helpers -----

// SetStatus transitions user status (e.g., to INACTIVE or BANNED). Updates UpdatedAt timestamp.
func (user *User) SetStatus(status Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	user.Status = status
	user.touch()
	return nil
}

// SetRole changes user role (e.g., promote CLIENT -> DRIVER). Updates UpdatedAt timestamp.
func (user *User) SetRole(role Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	user.Role = role
	user.touch()
	return nil
}

// Can reports whether the user's role grants the given capability.
func (user *User) Can(cap Capability) bool {
	for _, c := range Capabilities(user.Role) {
		if c == cap {
			return true
		}
	}
	return false
}

// FullName joins first and last name for notification contact info.
func (user *User) FullName() string {
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

// touch sets UpdatedAt to now (UTC).
func (user *User) touch() {
	user.UpdatedAt = time.Now().UTC()
}

// Convenience helpers.
func (user *User) IsActive() bool { return user.Status.IsActive() }
func (user *User) IsDriver() bool { return user.Role.IsDriver() }
func (user *User) IsClient() bool { return user.Role.IsClient() }
func (user *User) IsAdmin() bool  { return user.Role.IsAdmin() }
