package token

import (
	"net/http/httptest"
	"testing"
	"time"

	"move-market/internal/domain/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func TestIssueAccessRoundTrip(t *testing.T) {
	mgr := NewManager(testSecret, time.Hour)

	raw, issued, err := mgr.IssueAccess("driver@example.com",
		Profile{UserID: "u-1", FirstName: "Ali", LastName: "Karimov", PhoneNumber: "+77010000000"},
		user.RoleDriver)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := mgr.ParseAndValidate(raw)
	require.NoError(t, err)

	assert.Equal(t, "driver@example.com", claims.Subject)
	assert.Equal(t, issued.UserID, claims.UserID)
	assert.True(t, claims.HasRole(user.RoleDriver))
	assert.False(t, claims.HasRole(user.RoleAdmin))
	assert.Equal(t, KindAccess, claims.Classify())
}

func TestIssueAccessRejectsUnknownRole(t *testing.T) {
	mgr := NewManager(testSecret, time.Hour)

	_, _, err := mgr.IssueAccess("x@example.com", Profile{}, user.Role("SUPERUSER"))
	require.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := NewManager(testSecret, -time.Minute)

	raw, _, err := mgr.IssueAccess("late@example.com", Profile{}, user.RoleClient)
	require.NoError(t, err)

	_, err = mgr.ParseAndValidate(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestForgedSignatureRejected(t *testing.T) {
	mgr := NewManager(testSecret, time.Hour)
	other := NewManager("a-different-secret", time.Hour)

	raw, _, err := other.IssueAccess("forger@example.com", Profile{}, user.RoleClient)
	require.NoError(t, err)

	_, err = mgr.ParseAndValidate(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyKindRejectsWrongKind(t *testing.T) {
	mgr := NewManager(testSecret, time.Hour)

	refresh, _, err := mgr.IssueRefresh("driver@example.com", time.Hour)
	require.NoError(t, err)

	_, err = mgr.VerifyKind(refresh, KindAccess)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, ErrWrongKind)

	claims, err := mgr.VerifyKind(refresh, KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, "driver@example.com", claims.Subject)
}

func TestOfferTokenClassificationAndClaims(t *testing.T) {
	mgr := NewManager(testSecret, time.Hour)
	expiresAt := time.Now().UTC().Add(30 * time.Second)

	raw, _, err := mgr.IssueOffer("offer-1", "driver-1", "mission-1", expiresAt)
	require.NoError(t, err)

	claims, err := mgr.VerifyKind(raw, KindOffer)
	require.NoError(t, err)

	assert.Equal(t, "offer-1", claims.ID)
	assert.Equal(t, "driver-1", claims.Subject)
	assert.Equal(t, "mission-1", claims.MoveID)
	assert.WithinDuration(t, expiresAt, claims.ExpiresAt.Time, time.Second)
}

func TestIssueOfferRequiresIDs(t *testing.T) {
	mgr := NewManager(testSecret, time.Hour)

	_, _, err := mgr.IssueOffer("offer-1", "", "mission-1", time.Now().Add(time.Minute))
	require.Error(t, err)

	_, _, err = mgr.IssueOffer("offer-1", "driver-1", "", time.Now().Add(time.Minute))
	require.Error(t, err)
}

func TestExpiredOfferAlwaysRejected(t *testing.T) {
	mgr := NewManager(testSecret, time.Hour)

	raw, _, err := mgr.IssueOffer("offer-2", "driver-1", "mission-1", time.Now().UTC().Add(-time.Second))
	require.NoError(t, err)

	_, err = mgr.VerifyKind(raw, KindOffer)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestStripBearer(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"case insensitive scheme", "bearer abc", "abc", false},
		{"surrounding whitespace", "  Bearer abc  ", "abc", false},
		{"missing scheme", "abc.def.ghi", "", true},
		{"empty credential", "Bearer ", "", true},
		{"empty string", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StripBearer(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromAuthorization(t *testing.T) {
	t.Run("header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Authorization", "Bearer tok-1")

		got, err := FromAuthorization(r)
		require.NoError(t, err)
		assert.Equal(t, "tok-1", got)
	})

	t.Run("query fallback without scheme", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?Authorization=tok-2", nil)

		got, err := FromAuthorization(r)
		require.NoError(t, err)
		assert.Equal(t, "tok-2", got)
	})

	t.Run("absent", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)

		_, err := FromAuthorization(r)
		assert.ErrorIs(t, err, ErrNoAuthHeader)
	})
}
