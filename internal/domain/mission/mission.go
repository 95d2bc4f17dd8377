package mission

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// AssignedDriver is the slice of driver identity a mission carries once a
// driver has been matched. Only the fields the dispatch channel depends on.
type AssignedDriver struct {
	ID    string
	Email string
}

// Mission is the domain entity corresponding to the `missions` table.
// It links a client and, once assigned, a driver.
type Mission struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Ownership
	ClientID    string
	ClientEmail string
	ClientPhone string
	Driver      *AssignedDriver // nil until a driver accepted an offer

	// Route (already geocoded by the marketplace services)
	FromAddress string
	ToAddress   string
	DistanceKm  float64
	DurationMin int

	// Pricing
	Cost float64

	// Inventory
	Items []Item

	// Lifecycle
	Status    Status
	PlannedAt *time.Time // optional scheduled date/time
	Booked    bool
}

var (
	ErrInvalidClientEmail = errors.New("invalid client email address")
	ErrEmptyAddress       = errors.New("mission addresses cannot be empty")
	ErrBadTimestamps      = errors.New("updated_at cannot be before created_at")
)

// NewMission constructs a mission in the REQUESTED state. The caller provides
// already-computed route figures; this package never talks to geocoding.
func NewMission(clientID, clientEmail, clientPhone, from, to string, distanceKm float64, durationMin int, cost float64, items []Item) (*Mission, error) {
	now := time.Now().UTC()
	m := &Mission{
		CreatedAt:   now,
		UpdatedAt:   now,
		ClientID:    strings.TrimSpace(clientID),
		ClientEmail: strings.TrimSpace(clientEmail),
		ClientPhone: strings.TrimSpace(clientPhone),
		FromAddress: strings.TrimSpace(from),
		ToAddress:   strings.TrimSpace(to),
		DistanceKm:  distanceKm,
		DurationMin: durationMin,
		Cost:        cost,
		Items:       items,
		Status:      StatusRequested,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks invariants of the Mission entity.
func (m *Mission) Validate() error {
	if _, err := mail.ParseAddress(m.ClientEmail); err != nil {
		return ErrInvalidClientEmail
	}
	if m.FromAddress == "" || m.ToAddress == "" {
		return ErrEmptyAddress
	}
	if !m.Status.Valid() {
		return ErrInvalidStatus
	}
	if !m.CreatedAt.IsZero() && !m.UpdatedAt.IsZero() && m.UpdatedAt.Before(m.CreatedAt) {
		return ErrBadTimestamps
	}
	return nil
}

// SetStatus transitions mission status. Updates UpdatedAt timestamp.
func (m *Mission) SetStatus(next Status) error {
	if !next.Valid() {
		return ErrInvalidStatus
	}
	m.Status = next
	m.Booked = next == StatusBooked || next == StatusInProgress || next == StatusCompleted
	m.touch()
	return nil
}

// Assign binds an accepted driver to the mission.
func (m *Mission) Assign(driverID, driverEmail string) {
	m.Driver = &AssignedDriver{ID: driverID, Email: driverEmail}
	m.touch()
}

// HasDriver reports whether a driver has been assigned.
func (m *Mission) HasDriver() bool { return m.Driver != nil && m.Driver.ID != "" }

// touch sets UpdatedAt to now (UTC).
func (m *Mission) touch() {
	m.UpdatedAt = time.Now().UTC()
}
