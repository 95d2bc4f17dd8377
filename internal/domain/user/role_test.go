package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	got, err := ParseRole(" driver ")
	require.NoError(t, err)
	assert.Equal(t, RoleDriver, got)

	_, err = ParseRole("WIZARD")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestCapabilities(t *testing.T) {
	assert.NotContains(t, Capabilities(RoleClient), CapAcceptOffers)
	assert.Contains(t, Capabilities(RoleDriver), CapAcceptOffers)
	assert.Contains(t, Capabilities(RoleDriver), CapReceiveOffers)
	assert.Contains(t, Capabilities(RoleAdmin), CapInspectPresence)
	assert.NotContains(t, Capabilities(RoleDriver), CapInspectPresence)
	assert.Nil(t, Capabilities(Role("WIZARD")))
}

func TestUserCan(t *testing.T) {
	driver, err := NewUser("d@example.com", "Dana", "Driver", "+77010000000", RoleDriver)
	require.NoError(t, err)
	assert.True(t, driver.Can(CapAcceptOffers))
	assert.False(t, driver.Can(CapInspectPresence))

	client, err := NewUser("c@example.com", "Carl", "Client", "", RoleClient)
	require.NoError(t, err)
	assert.True(t, client.Can(CapSubscribeOwnMissions))
	assert.False(t, client.Can(CapAcceptOffers))
}

func TestNewUserValidation(t *testing.T) {
	_, err := NewUser("broken", "A", "B", "", RoleClient)
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = NewUser("a@example.com", "", "B", "", RoleClient)
	assert.ErrorIs(t, err, ErrMissingName)

	u, err := NewUser("a@example.com", "Ann", "Bell", "", RoleClient)
	require.NoError(t, err)
	assert.Equal(t, "Ann Bell", u.FullName())
	assert.True(t, u.IsActive())
}
