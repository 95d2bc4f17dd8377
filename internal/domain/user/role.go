package user

import (
	"errors"
	"strings"
)

// Role is a user role as stored in the `roles` table.
type Role string

const (
	RoleClient Role = "CLIENT"
	RoleDriver Role = "DRIVER"
	RoleAdmin  Role = "ADMIN"
)

var ErrInvalidRole = errors.New("invalid role")

// ParseRole normalizes (uppercases+trims) and validates a role string.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if role.Valid() {
		return role, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether role is one of the allowed role constants.
func (role Role) Valid() bool {
	switch role {
	case RoleClient, RoleDriver, RoleAdmin:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Role.
func (role Role) String() string {
	return string(role)
}

// Convenience helpers.
func (role Role) IsClient() bool { return role == RoleClient }
func (role Role) IsDriver() bool { return role == RoleDriver }
func (role Role) IsAdmin() bool  { return role == RoleAdmin }

// Capability names an operation a role may perform on the dispatch channel.
type Capability string

const (
	CapSubscribeOwnMissions Capability = "subscribe_own_missions"
	CapReceiveOffers        Capability = "receive_offers"
	CapAcceptOffers         Capability = "accept_offers"
	CapInspectPresence      Capability = "inspect_presence"
)

// Capabilities maps a role to its capability set. One mapping function
// instead of per-role subtypes carrying overridden authority lists.
func Capabilities(role Role) []Capability {
	switch role {
	case RoleClient:
		return []Capability{CapSubscribeOwnMissions}
	case RoleDriver:
		return []Capability{CapSubscribeOwnMissions, CapReceiveOffers, CapAcceptOffers}
	case RoleAdmin:
		return []Capability{CapSubscribeOwnMissions, CapInspectPresence}
	default:
		return nil
	}
}
