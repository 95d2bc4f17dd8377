package websocket

import (
	"sync"

	"move-market/internal/domain/user"
	"move-market/internal/general/token"
)

// Session is the strongly-typed per-connection state created at handshake
// and destroyed at disconnect. It replaces a dynamic attribute map: every
// interceptor receives this struct explicitly. Never persisted.
type Session struct {
	mu sync.RWMutex

	email    string
	userID   string
	roles    []user.Role
	driverID string // set only when the identity carries the DRIVER role
}

// newSession creates an unauthenticated session.
func newSession() *Session {
	return &Session{}
}

// bind stores a verified identity on the session. Called at most once per
// successful credential verification; later binds overwrite earlier ones
// (a re-sent Connect frame refreshes the identity).
func (s *Session) bind(claims *token.Claims) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.email = claims.Subject
	s.userID = claims.UserID
	s.roles = claims.Roles
	if claims.HasRole(user.RoleDriver) {
		s.driverID = claims.UserID
	} else {
		s.driverID = ""
	}
}

// Authenticated reports whether an identity is bound to the session.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.email != ""
}

// Email returns the verified identity email, or "" when anonymous.
func (s *Session) Email() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.email
}

// UserID returns the bound user id, or "" when anonymous.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// DriverID returns the bound driver id, or "" when the session does not
// belong to a driver.
func (s *Session) DriverID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.driverID
}

// HasRole reports whether the session identity carries the given role.
func (s *Session) HasRole(role user.Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r == role {
			return true
		}
	}
	return false
}
