package token

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"move-market/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is the single verification-failure kind callers see.
	// The underlying cause (expired vs malformed vs forged) is wrapped for
	// diagnostics but must never change caller behavior.
	ErrInvalidToken = errors.New("invalid token")

	ErrNoAuthHeader       = errors.New("authorization header missing")
	ErrBadAuthScheme      = errors.New("authorization must start with Bearer")
	ErrInvalidSigningAlgo = errors.New("unexpected signing method")
	ErrWrongKind          = errors.New("token presented in the wrong role")
)

// Manager handles signed-token creation and verification. It holds the
// process-wide symmetric key, read-only after construction, and is passed
// by reference to every component that needs it.
type Manager struct {
	secret    []byte
	accessTTL time.Duration
}

// NewManager creates a token manager.
func NewManager(secret string, accessTTL time.Duration) *Manager {
	s := strings.TrimSpace(secret)
	if s == "" {
		panic("token: empty secret key")
	}

	return &Manager{
		secret:    []byte(s),
		accessTTL: accessTTL,
	}
}

// IssueAccess returns a signed access token for a user, valid for the
// manager's access TTL.
func (m *Manager) IssueAccess(email string, profile Profile, roles ...user.Role) (string, *Claims, error) {
	for _, role := range roles {
		if !role.Valid() {
			return "", nil, fmt.Errorf("invalid role: %s", role)
		}
	}

	claims := newAccessClaims(email, profile, roles, m.accessTTL)
	signed, err := m.sign(claims)
	return signed, claims, err
}

// IssueRefresh returns a signed refresh token carrying only the subject and
// the refresh marker.
func (m *Manager) IssueRefresh(email string, ttl time.Duration) (string, *Claims, error) {
	claims := newRefreshClaims(email, ttl)
	signed, err := m.sign(claims)
	return signed, claims, err
}

// IssueOffer returns a signed single-use mission-offer token expiring at the
// given absolute instant.
func (m *Manager) IssueOffer(offerID, driverID, missionID string, expiresAt time.Time) (string, *Claims, error) {
	if missionID == "" || driverID == "" {
		return "", nil, fmt.Errorf("offer token requires mission and driver ids")
	}

	claims := newOfferClaims(offerID, driverID, missionID, expiresAt)
	signed, err := m.sign(claims)
	return signed, claims, err
}

// sign serializes and signs a claim set with HS256.
func (m *Manager) sign(claims *Claims) (string, error) {
	tkn := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return tkn.SignedString(m.secret)
}

// ParseAndValidate verifies signature and standard claims. Any failure is
// reported as ErrInvalidToken with the cause wrapped for logging.
func (m *Manager) ParseAndValidate(raw string) (*Claims, error) {
	// create parser with expected signing method
	parser := jwtlib.NewParser(jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}))

	// validate claims and signature
	claims := &Claims{}
	tkn, err := parser.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (any, error) {
		if t.Method != jwtlib.SigningMethodHS256 {
			return nil, ErrInvalidSigningAlgo
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	// ensure token is valid
	if !tkn.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyKind parses the token and additionally asserts its kind, so a
// refresh token cannot be presented where an access token is required.
func (m *Manager) VerifyKind(raw string, want Kind) (*Claims, error) {
	claims, err := m.ParseAndValidate(raw)
	if err != nil {
		return nil, err
	}
	if got := claims.Classify(); got != want {
		return nil, fmt.Errorf("%w: %w: got %s, want %s", ErrInvalidToken, ErrWrongKind, got, want)
	}
	return claims, nil
}

// FromAuthorization reads "Authorization: Bearer <token>" from the request.
// WebSocket clients that cannot set headers may pass the credential as a
// query parameter instead.
func FromAuthorization(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		return StripBearer(authHeader)
	}

	if authParam := r.URL.Query().Get("Authorization"); authParam != "" {
		if tok, err := StripBearer(authParam); err == nil {
			return tok, nil
		}
		return authParam, nil // some clients send just the token
	}

	return "", ErrNoAuthHeader
}

// StripBearer removes the "Bearer " scheme prefix from a credential.
func StripBearer(s string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(s), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrBadAuthScheme
	}
	tok := strings.TrimSpace(parts[1])
	if tok == "" {
		return "", ErrBadAuthScheme
	}
	return tok, nil
}
