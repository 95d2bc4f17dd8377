package token

import (
	"time"

	"move-market/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes the purposes a signed token can be minted for.
type Kind int

const (
	KindAccess Kind = iota
	KindRefresh
	KindOffer
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindRefresh:
		return "refresh"
	case KindOffer:
		return "offer"
	default:
		return "unknown"
	}
}

// Profile carries the identity attributes embedded into access tokens.
type Profile struct {
	UserID      string
	FirstName   string
	LastName    string
	PhoneNumber string
}

// Claims defines our canonical JWT claims payload. One claim set serves all
// token kinds; the optional fields that are absent for a kind stay empty.
type Claims struct {
	Roles       []user.Role `json:"roles,omitempty"`
	UserID      string      `json:"userId,omitempty"`
	FirstName   string      `json:"firstName,omitempty"`
	LastName    string      `json:"lastName,omitempty"`
	PhoneNumber string      `json:"phoneNumber,omitempty"`
	Refresh     bool        `json:"refresh,omitempty"`
	MoveID      string      `json:"moveId,omitempty"`
	jwtlib.RegisteredClaims
}

// ensure Claims implements jwtlib.Claims interface
var _ jwtlib.Claims = (*Claims)(nil)

// Classify reports what kind of token the claim set belongs to. A refresh
// token carries refresh=true; an offer token carries a moveId; everything
// else is an access token.
func (c *Claims) Classify() Kind {
	switch {
	case c.Refresh:
		return KindRefresh
	case c.MoveID != "":
		return KindOffer
	default:
		return KindAccess
	}
}

// HasRole reports whether the claim set carries the given role.
func (c *Claims) HasRole(role user.Role) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// newAccessClaims constructs access-token claims for an end user.
func newAccessClaims(email string, profile Profile, roles []user.Role, ttl time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		Roles:       roles,
		UserID:      profile.UserID,
		FirstName:   profile.FirstName,
		LastName:    profile.LastName,
		PhoneNumber: profile.PhoneNumber,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}

// newRefreshClaims constructs refresh-token claims.
func newRefreshClaims(email string, ttl time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		Refresh: true,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}

// newOfferClaims constructs single-use mission-offer claims. Expiry is an
// absolute instant, not a TTL: the offer deadline is fixed when it is made.
// The offer id rides in the jti claim so consumption can be tracked.
func newOfferClaims(offerID, driverID, missionID string, expiresAt time.Time) *Claims {
	now := time.Now().UTC()
	return &Claims{
		MoveID: missionID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        offerID,
			Subject:   driverID,
			ExpiresAt: jwtlib.NewNumericDate(expiresAt.UTC()),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}
