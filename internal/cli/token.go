package cli

import (
	"fmt"
	"time"

	"move-market/internal/domain/user"
	"move-market/internal/general/token"
)

// GenerateUserToken mints a short-lived access token for a seeded user.
// It uses token.Manager and returns the raw token plus the claims.
//
// Typical use (dev-only):
//
//	raw, _, err := cli.GenerateUserToken(secret,
//	    "ali@example.com", "550e8400-e29b-41d4-a716-446655440001", "DRIVER")
//
// Keep this package dev/internal only. Do not call it from production code paths.
func GenerateUserToken(secret, email, userID, roleStr string) (string, token.Claims, error) {
	// parse and validate the role
	role, err := user.ParseRole(roleStr)
	if err != nil {
		return "", token.Claims{}, fmt.Errorf("invalid role %q: %w", roleStr, err)
	}

	// set up a new token manager
	mgr := token.NewManager(secret, 2*time.Hour)

	// mint the access token for the given identity
	raw, claims, err := mgr.IssueAccess(email, token.Profile{UserID: userID}, role)
	if err != nil {
		return "", token.Claims{}, fmt.Errorf("issue token: %w", err)
	}

	return raw, *claims, nil
}
