package websocket

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"move-market/internal/domain/mission"
	"move-market/internal/domain/user"
	"move-market/internal/general/contracts"
	"move-market/internal/general/logger"
	"move-market/internal/general/presence"
	"move-market/internal/general/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notifierHarness struct {
	notifier *Notifier
	tokens   *token.Manager
	push     *fakePusher
	pub      *fakePublisher
	uow      *fakeUOW
	missions *fakeMissionRepo
	presence *presence.Registry
}

func newNotifierHarness(t *testing.T, missions *fakeMissionRepo, users *fakeUserRepo) *notifierHarness {
	t.Helper()

	log := logger.New("notifier-test")
	tokens := token.NewManager("notifier-test-secret", time.Hour)
	push := &fakePusher{}
	pub := &fakePublisher{}
	uow := &fakeUOW{}
	reg := presence.NewRegistry(log)

	// a one-hour tick keeps the countdown goroutine quiet during tests
	n := NewNotifier(log, tokens, push, pub, uow, missions, users, reg, 30*time.Second, time.Hour)

	return &notifierHarness{
		notifier: n,
		tokens:   tokens,
		push:     push,
		pub:      pub,
		uow:      uow,
		missions: missions,
		presence: reg,
	}
}

func testDriver(id, email string) *user.User {
	return &user.User{
		ID:        id,
		Email:     email,
		FirstName: "Dana",
		LastName:  "Driver",
		Role:      user.RoleDriver,
		Status:    user.StatusActive,
	}
}

// offerToken digs the signed credential out of the direct driver push.
func (h *notifierHarness) offerToken(t *testing.T, driverID string) string {
	t.Helper()
	inbox := h.push.driverInbox(driverID)
	require.NotEmpty(t, inbox)
	snap, ok := inbox[len(inbox)-1].(contracts.WSMissionOffer)
	require.True(t, ok)
	require.NotEmpty(t, snap.OfferToken)
	return snap.OfferToken
}

func TestOfferMissionBroadcastsSnapshot(t *testing.T) {
	m := testMission("m-1", "client@example.com")
	m.Cost = 12500
	m.Items = []mission.Item{{Name: "sofa", Quantity: 1}, {Name: "box", Quantity: 4}}
	h := newNotifierHarness(t, newFakeMissionRepo(m), newFakeUserRepo())

	offerID, err := h.notifier.OfferMission(context.Background(), m, "d-1", 30*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, offerID)

	// the target driver received the full snapshot directly
	inbox := h.push.driverInbox("d-1")
	require.Len(t, inbox, 1)
	snap, ok := inbox[0].(contracts.WSMissionOffer)
	require.True(t, ok)
	assert.Equal(t, offerID, snap.OfferID)
	assert.Equal(t, "m-1", snap.MissionID)
	assert.Equal(t, 12500.0, snap.Cost)
	assert.Contains(t, snap.ItemSummary, "sofa")
	assert.InDelta(t, 30, snap.RemainingSeconds, 2)

	// the embedded credential must verify as an offer for this mission
	claims, err := h.tokens.VerifyKind(snap.OfferToken, token.KindOffer)
	require.NoError(t, err)
	assert.Equal(t, offerID, claims.ID)
	assert.Equal(t, "d-1", claims.Subject)
	assert.Equal(t, "m-1", claims.MoveID)

	// topic subscribers saw the same snapshot on the mission topic
	msgs := h.push.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, contracts.TopicMissionPrefix+"m-1", msgs[0].topic)
}

func TestOfferTokenOnlyReachesTargetDriver(t *testing.T) {
	// the offer must arrive on the driver's own connection, since the
	// driver cannot subscribe to the mission topic before being assigned;
	// the topic copy carries no credential
	m := testMission("m-1", "client@example.com")
	h := newNotifierHarness(t, newFakeMissionRepo(m), newFakeUserRepo())

	_, err := h.notifier.OfferMission(context.Background(), m, "d-1", 30*time.Second)
	require.NoError(t, err)

	inbox := h.push.driverInbox("d-1")
	require.Len(t, inbox, 1)
	direct := inbox[0].(contracts.WSMissionOffer)
	assert.NotEmpty(t, direct.OfferToken)

	msgs := h.push.published()
	require.Len(t, msgs, 1)
	public, ok := msgs[0].msg.(contracts.WSMissionOffer)
	require.True(t, ok)
	assert.Empty(t, public.OfferToken, "topic subscribers must not receive the credential")
	assert.Equal(t, direct.OfferID, public.OfferID)
}

func TestAcceptOfferAssignsDriver(t *testing.T) {
	m := testMission("m-1", "client@example.com")
	repo := newFakeMissionRepo(m)
	h := newNotifierHarness(t, repo, newFakeUserRepo(testDriver("d-1", "driver@example.com")))

	_, err := h.notifier.OfferMission(context.Background(), m, "d-1", 30*time.Second)
	require.NoError(t, err)

	missionID, driverID, err := h.notifier.AcceptOffer(context.Background(), h.offerToken(t, "d-1"), "d-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", missionID)
	assert.Equal(t, "d-1", driverID)

	// assignment went through the transaction boundary
	assert.Equal(t, 1, h.uow.calls)
	require.Len(t, repo.assignments(), 1)
	assert.Equal(t, "driver@example.com", repo.assignments()[0].email)

	// subscribers saw the booked status
	msgs := h.push.published()
	last, ok := msgs[len(msgs)-1].msg.(contracts.WSMissionStatus)
	require.True(t, ok)
	assert.Equal(t, mission.StatusBooked.String(), last.Status)
	assert.True(t, last.Booked)

	// the outcome was mirrored onto the broker
	keys := h.pub.publishedKeys()
	require.NotEmpty(t, keys)
	assert.True(t, strings.HasPrefix(keys[len(keys)-1], contracts.RouteMissionRespPrefix))
}

func TestAcceptOfferRejectsWrongPresenter(t *testing.T) {
	m := testMission("m-1", "client@example.com")
	repo := newFakeMissionRepo(m)
	h := newNotifierHarness(t, repo, newFakeUserRepo(testDriver("d-1", "driver@example.com")))

	_, err := h.notifier.OfferMission(context.Background(), m, "d-1", 30*time.Second)
	require.NoError(t, err)
	raw := h.offerToken(t, "d-1")

	// another driver holding a leaked token cannot answer with it
	_, _, err = h.notifier.AcceptOffer(context.Background(), raw, "d-2")
	assert.ErrorIs(t, err, token.ErrInvalidToken)

	// a session with no driver identity (e.g. the mission's client) neither
	_, _, err = h.notifier.AcceptOffer(context.Background(), raw, "")
	assert.ErrorIs(t, err, token.ErrInvalidToken)
	_, _, err = h.notifier.DeclineOffer(context.Background(), raw, "d-2")
	assert.ErrorIs(t, err, token.ErrInvalidToken)

	assert.Empty(t, repo.assignments())
	assert.Equal(t, 0, h.uow.calls)

	// the failed attempts did not void the offer for its real driver
	missionID, driverID, err := h.notifier.AcceptOffer(context.Background(), raw, "d-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", missionID)
	assert.Equal(t, "d-1", driverID)
	assert.Len(t, repo.assignments(), 1)
}

func TestAcceptOfferConsumesTokenOnce(t *testing.T) {
	m := testMission("m-1", "client@example.com")
	repo := newFakeMissionRepo(m)
	h := newNotifierHarness(t, repo, newFakeUserRepo(testDriver("d-1", "driver@example.com")))

	_, err := h.notifier.OfferMission(context.Background(), m, "d-1", 30*time.Second)
	require.NoError(t, err)
	raw := h.offerToken(t, "d-1")

	_, _, err = h.notifier.AcceptOffer(context.Background(), raw, "d-1")
	require.NoError(t, err)

	// replaying the same token is rejected, for accept and decline alike
	_, _, err = h.notifier.AcceptOffer(context.Background(), raw, "d-1")
	assert.ErrorIs(t, err, token.ErrInvalidToken)

	_, _, err = h.notifier.DeclineOffer(context.Background(), raw, "d-1")
	assert.ErrorIs(t, err, token.ErrInvalidToken)

	assert.Len(t, repo.assignments(), 1)
}

func TestAcceptExpiredOfferRejected(t *testing.T) {
	repo := newFakeMissionRepo(testMission("m-1", "client@example.com"))
	h := newNotifierHarness(t, repo, newFakeUserRepo(testDriver("d-1", "driver@example.com")))

	raw, _, err := h.tokens.IssueOffer("offer-x", "d-1", "m-1", time.Now().UTC().Add(-time.Second))
	require.NoError(t, err)

	_, _, err = h.notifier.AcceptOffer(context.Background(), raw, "d-1")
	assert.ErrorIs(t, err, token.ErrInvalidToken)

	// mission state was never touched
	assert.Equal(t, 0, h.uow.calls)
	assert.Empty(t, repo.assignments())
}

func TestAcceptOfferSurvivesRestart(t *testing.T) {
	// a valid signed token is honored even when the in-memory offer record
	// is gone; the signature and expiry are the source of truth
	repo := newFakeMissionRepo(testMission("m-1", "client@example.com"))
	h := newNotifierHarness(t, repo, newFakeUserRepo(testDriver("d-1", "driver@example.com")))

	raw, _, err := h.tokens.IssueOffer("offer-y", "d-1", "m-1", time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)

	missionID, driverID, err := h.notifier.AcceptOffer(context.Background(), raw, "d-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", missionID)
	assert.Equal(t, "d-1", driverID)
}

func TestAcceptOfferRetriableAfterFailedTx(t *testing.T) {
	m := testMission("m-1", "client@example.com")
	repo := newFakeMissionRepo(m)
	h := newNotifierHarness(t, repo, newFakeUserRepo(testDriver("d-1", "driver@example.com")))

	_, err := h.notifier.OfferMission(context.Background(), m, "d-1", 30*time.Second)
	require.NoError(t, err)
	raw := h.offerToken(t, "d-1")

	h.uow.err = errors.New("deadlock detected")
	_, _, err = h.notifier.AcceptOffer(context.Background(), raw, "d-1")
	require.Error(t, err)
	assert.Empty(t, repo.assignments())

	// the failed attempt must not burn the single-use marker
	h.uow.err = nil
	_, _, err = h.notifier.AcceptOffer(context.Background(), raw, "d-1")
	require.NoError(t, err)
	assert.Len(t, repo.assignments(), 1)
}

func TestDeclineOfferLeavesMissionUntouched(t *testing.T) {
	m := testMission("m-1", "client@example.com")
	repo := newFakeMissionRepo(m)
	h := newNotifierHarness(t, repo, newFakeUserRepo(testDriver("d-1", "driver@example.com")))

	_, err := h.notifier.OfferMission(context.Background(), m, "d-1", 30*time.Second)
	require.NoError(t, err)

	missionID, driverID, err := h.notifier.DeclineOffer(context.Background(), h.offerToken(t, "d-1"), "d-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", missionID)
	assert.Equal(t, "d-1", driverID)

	assert.Equal(t, 0, h.uow.calls)
	assert.Empty(t, repo.assignments())
	assert.Equal(t, mission.StatusRequested, m.Status)

	keys := h.pub.publishedKeys()
	require.NotEmpty(t, keys)
	assert.True(t, strings.HasPrefix(keys[0], contracts.RouteMissionRespPrefix))
}

func TestHandleOfferRequestSkipsOfflineDriver(t *testing.T) {
	repo := newFakeMissionRepo(testMission("m-1", "client@example.com"))
	h := newNotifierHarness(t, repo, newFakeUserRepo())

	err := h.notifier.handleOfferRequest(context.Background(),
		contracts.MissionOfferRequest{MissionID: "m-1", DriverID: "d-1"})
	require.Error(t, err)
	assert.Empty(t, h.push.published())
	assert.Empty(t, h.push.driverInbox("d-1"))
}

func TestHandleOfferRequestSkipsClosedMissions(t *testing.T) {
	booked := testMission("m-2", "client@example.com")
	booked.Assign("d-9", "other@example.com")
	cancelled := testMission("m-3", "client@example.com")
	cancelled.Status = mission.StatusCancelled

	h := newNotifierHarness(t, newFakeMissionRepo(booked, cancelled), newFakeUserRepo())
	h.presence.MarkOnline("d-1")

	err := h.notifier.handleOfferRequest(context.Background(),
		contracts.MissionOfferRequest{MissionID: "m-2", DriverID: "d-1"})
	assert.NoError(t, err)

	err = h.notifier.handleOfferRequest(context.Background(),
		contracts.MissionOfferRequest{MissionID: "m-3", DriverID: "d-1"})
	assert.NoError(t, err)

	assert.Empty(t, h.push.published(), "closed missions must not produce offers")
	assert.Empty(t, h.push.driverInbox("d-1"))
}

func TestRemainingSecondsClamp(t *testing.T) {
	now := time.Now()

	assert.Equal(t, 30, remainingSeconds(now.Add(30*time.Second), now))
	assert.Equal(t, 0, remainingSeconds(now, now))
	assert.Equal(t, 0, remainingSeconds(now.Add(-10*time.Second), now), "countdown never goes negative")
}
