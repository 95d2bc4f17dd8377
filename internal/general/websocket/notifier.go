package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"move-market/internal/domain/mission"
	"move-market/internal/general/contracts"
	"move-market/internal/general/logger"
	"move-market/internal/general/presence"
	"move-market/internal/general/rabbitmq"
	"move-market/internal/general/token"
	"move-market/internal/ports"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const producerName = "dispatch-service"

// Pusher delivers messages to live dispatch connections: fan-out to the
// subscribers of an in-process topic, or directly to one driver's
// connection(s). Implemented by Channel.
type Pusher interface {
	PublishTopic(topic string, msg any) int
	PublishDriver(driverID string, msg any) int
}

// EventPublisher mirrors dispatch events onto the message broker.
// Implemented by rabbitmq.MQPublisher.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

var _ EventPublisher = (*rabbitmq.MQPublisher)(nil)

// openOffer is the in-memory record of a mission offer that has not yet
// been answered or expired.
type openOffer struct {
	offerID   string
	missionID string
	driverID  string
	raw       string // signed offer token
	expiresAt time.Time
	stop      chan struct{}
	stopOnce  sync.Once
}

func (o *openOffer) close() {
	o.stopOnce.Do(func() { close(o.stop) })
}

// Notifier composes and pushes time-bounded mission offers to mission
// topics, and consumes offer answers. Entitlement is already gated by the
// channel authenticator and the subscription authorizer; the notifier only
// reports time pressure and never owns mission lifecycle beyond recording
// an acceptance atomically.
type Notifier struct {
	logger   *logger.Logger
	tokens   *token.Manager
	push     Pusher
	pub      EventPublisher
	uow      ports.UnitOfWork
	missions ports.MissionRepository
	users    ports.UserRepository
	presence *presence.Registry

	offerTTL time.Duration
	tick     time.Duration

	mu       sync.Mutex
	open     map[string]*openOffer // keyed by offer id (token jti)
	consumed map[string]struct{}   // offer ids that were answered
}

// NewNotifier creates the dispatch notifier.
func NewNotifier(
	log *logger.Logger,
	tokens *token.Manager,
	push Pusher,
	pub EventPublisher,
	uow ports.UnitOfWork,
	missions ports.MissionRepository,
	users ports.UserRepository,
	reg *presence.Registry,
	offerTTL, tick time.Duration,
) *Notifier {
	return &Notifier{
		logger:   log,
		tokens:   tokens,
		push:     push,
		pub:      pub,
		uow:      uow,
		missions: missions,
		users:    users,
		presence: reg,
		offerTTL: offerTTL,
		tick:     tick,
		open:     make(map[string]*openOffer),
		consumed: make(map[string]struct{}),
	}
}

// OfferMission issues a single-use offer token for the driver, broadcasts
// the first offer snapshot on the mission topic, and keeps re-broadcasting
// a fresh countdown every tick until the offer is answered or expires.
// Returns the offer id.
func (n *Notifier) OfferMission(ctx context.Context, m *mission.Mission, driverID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = n.offerTTL
	}

	offerID := uuid.NewString()
	expiresAt := time.Now().UTC().Add(ttl)

	raw, _, err := n.tokens.IssueOffer(offerID, driverID, m.ID, expiresAt)
	if err != nil {
		return "", fmt.Errorf("issue offer token: %w", err)
	}

	offer := &openOffer{
		offerID:   offerID,
		missionID: m.ID,
		driverID:  driverID,
		raw:       raw,
		expiresAt: expiresAt,
		stop:      make(chan struct{}),
	}

	n.mu.Lock()
	n.open[offerID] = offer
	n.mu.Unlock()

	n.logger.Info(n.logger.WithMissionID(ctx, m.ID), "mission_offered", "Mission offered to driver",
		map[string]any{"offer_id": offerID, "driver_id": driverID, "expires_at": expiresAt.Format(time.RFC3339)})

	n.broadcastOffer(m, offer)

	go n.countdown(m, offer)

	return offerID, nil
}

// countdown re-broadcasts the offer with a recomputed remaining-seconds
// figure until it is answered or its deadline passes.
func (n *Notifier) countdown(m *mission.Mission, offer *openOffer) {
	ticker := time.NewTicker(n.tick)
	defer ticker.Stop()

	for {
		select {
		case <-offer.stop:
			return

		case <-ticker.C:
			if remainingSeconds(offer.expiresAt, time.Now()) <= 0 {
				n.expireOffer(m, offer)
				return
			}
			n.broadcastOffer(m, offer)
		}
	}
}

// expireOffer stops the countdown and reports the expiry so the
// marketplace can re-offer or re-queue the mission. Mission status is not
// touched here.
func (n *Notifier) expireOffer(m *mission.Mission, offer *openOffer) {
	offer.close()

	n.mu.Lock()
	delete(n.open, offer.offerID)
	n.mu.Unlock()

	ctx := n.logger.WithMissionID(context.Background(), offer.missionID)
	n.logger.Info(ctx, "mission_offer_expired", "Offer window elapsed without an answer",
		map[string]any{"offer_id": offer.offerID, "driver_id": offer.driverID})

	expired := contracts.WSMissionStatus{
		Type:      "mission_offer_expired",
		MissionID: offer.missionID,
		Status:    m.Status.String(),
		Booked:    false,
		Envelope:  n.envelope(),
	}
	n.push.PublishDriver(offer.driverID, expired)
	n.push.PublishTopic(contracts.TopicMissionPrefix+offer.missionID, expired)

	n.publishResponse(ctx, offer, false, "expired")
}

// broadcastOffer delivers a fresh point-in-time snapshot of the offer. The
// copy carrying the signed offer token goes straight to the target driver's
// connections; mission topic subscribers receive the same snapshot with the
// token redacted, so only the offered driver ever holds the credential.
func (n *Notifier) broadcastOffer(m *mission.Mission, offer *openOffer) {
	snapshot := n.buildSnapshot(m, offer, time.Now())
	toDriver := n.push.PublishDriver(offer.driverID, snapshot)

	public := snapshot
	public.OfferToken = ""
	topic := contracts.TopicMissionPrefix + offer.missionID
	toTopic := n.push.PublishTopic(topic, public)

	n.logger.Debug(context.Background(), "mission_offer_broadcast", "Offer snapshot published",
		map[string]any{
			"offer_id":          offer.offerID,
			"topic":             topic,
			"remaining_seconds": snapshot.RemainingSeconds,
			"driver_conns":      toDriver,
			"subscribers":       toTopic,
		})
}

// buildSnapshot projects the mission and the open offer into a wire
// payload. Each call recomputes the countdown from the absolute expiry.
func (n *Notifier) buildSnapshot(m *mission.Mission, offer *openOffer, now time.Time) contracts.WSMissionOffer {
	client := contracts.ContactInfo{
		Email: m.ClientEmail,
		Phone: m.ClientPhone,
	}
	if u, err := n.users.GetByEmail(context.Background(), m.ClientEmail); err == nil {
		client.Name = u.FullName()
	}

	return contracts.WSMissionOffer{
		Type:       "mission_offer",
		OfferID:    offer.offerID,
		MissionID:  m.ID,
		OfferToken: offer.raw,
		Route: contracts.RoutePlan{
			FromAddress: m.FromAddress,
			ToAddress:   m.ToAddress,
			DistanceKm:  m.DistanceKm,
			DurationMin: m.DurationMin,
		},
		Cost:             m.Cost,
		ItemSummary:      mission.Summary(m.Items),
		RemainingSeconds: remainingSeconds(offer.expiresAt, now),
		Status:           m.Status.String(),
		Client:           client,
		PlannedAt:        m.PlannedAt,
		Booked:           m.Booked,
		Envelope:         n.envelope(),
	}
}

// AcceptOffer verifies an offer token and records the acceptance. A token
// failing verification (forged, malformed, past expiry, or issued to a
// different driver than the presenting one) rejects the acceptance; a token
// that was already consumed once is rejected the same way. Mission state is
// only mutated inside the transaction, so a failed acceptance leaves it
// untouched.
func (n *Notifier) AcceptOffer(ctx context.Context, raw, presenterID string) (string, string, error) {
	offer, claims, err := n.consumeOffer(raw, presenterID)
	if err != nil {
		return "", "", err
	}

	missionID, driverID := claims.MoveID, claims.Subject
	ctx = n.logger.WithMissionID(ctx, missionID)

	driver, err := n.users.GetByID(ctx, driverID)
	if err != nil {
		n.unconsume(claims.ID)
		return "", "", fmt.Errorf("resolve accepting driver %s: %w", driverID, err)
	}

	err = n.uow.WithinTx(ctx, func(ctx context.Context) error {
		return n.missions.AssignDriver(ctx, missionID, driverID, driver.Email, time.Now().UTC())
	})
	if err != nil {
		n.unconsume(claims.ID)
		return "", "", fmt.Errorf("assign mission %s to driver %s: %w", missionID, driverID, err)
	}

	if offer != nil {
		offer.close()
	}

	n.logger.Info(ctx, "mission_offer_accepted", "Driver accepted the mission offer",
		map[string]any{"offer_id": claims.ID, "driver_id": driverID, "email": driver.Email})

	n.push.PublishTopic(contracts.TopicMissionPrefix+missionID, contracts.WSMissionStatus{
		Type:      "mission_status_update",
		MissionID: missionID,
		Status:    mission.StatusBooked.String(),
		DriverID:  driverID,
		Booked:    true,
		Envelope:  n.envelope(),
	})

	n.publishResponse(ctx, &openOffer{offerID: claims.ID, missionID: missionID, driverID: driverID}, true, "accepted")

	return missionID, driverID, nil
}

// DeclineOffer verifies an offer token and closes the offer without
// touching mission state. The same presenter binding as AcceptOffer applies.
func (n *Notifier) DeclineOffer(ctx context.Context, raw, presenterID string) (string, string, error) {
	offer, claims, err := n.consumeOffer(raw, presenterID)
	if err != nil {
		return "", "", err
	}

	missionID, driverID := claims.MoveID, claims.Subject
	ctx = n.logger.WithMissionID(ctx, missionID)

	if offer != nil {
		offer.close()
	}

	n.logger.Info(ctx, "mission_offer_declined", "Driver declined the mission offer",
		map[string]any{"offer_id": claims.ID, "driver_id": driverID})

	n.publishResponse(ctx, &openOffer{offerID: claims.ID, missionID: missionID, driverID: driverID}, false, "declined")

	return missionID, driverID, nil
}

// consumeOffer verifies the token, asserts it was issued to the presenting
// driver, and claims single use of the offer id. The presenter check runs
// before the single-use marker is burned, so a stolen token presented by
// someone else does not void the offer for its real driver. Returns the
// open offer record when the offer is still tracked in memory (nil after a
// restart: the signed token alone is then the source of truth).
func (n *Notifier) consumeOffer(raw, presenterID string) (*openOffer, *token.Claims, error) {
	claims, err := n.tokens.VerifyKind(raw, token.KindOffer)
	if err != nil {
		return nil, nil, err
	}
	if claims.ID == "" {
		return nil, nil, fmt.Errorf("%w: offer token missing id", token.ErrInvalidToken)
	}
	if presenterID == "" || claims.Subject != presenterID {
		return nil, nil, fmt.Errorf("%w: offer token was not issued to the presenting driver", token.ErrInvalidToken)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, used := n.consumed[claims.ID]; used {
		return nil, nil, fmt.Errorf("%w: offer already consumed", token.ErrInvalidToken)
	}
	n.consumed[claims.ID] = struct{}{}

	offer := n.open[claims.ID]
	delete(n.open, claims.ID)

	return offer, claims, nil
}

// unconsume rolls the single-use marker back after a failed acceptance so
// the driver can retry within the offer window.
func (n *Notifier) unconsume(offerID string) {
	n.mu.Lock()
	delete(n.consumed, offerID)
	n.mu.Unlock()
}

// publishResponse mirrors the offer outcome onto the dispatch exchange.
func (n *Notifier) publishResponse(ctx context.Context, offer *openOffer, accepted bool, outcome string) {
	body, err := json.Marshal(contracts.MissionOfferResponse{
		OfferID:    offer.offerID,
		MissionID:  offer.missionID,
		DriverID:   offer.driverID,
		Accepted:   accepted,
		AnsweredAt: time.Now().UTC(),
		Envelope:   n.envelope(),
	})
	if err != nil {
		return
	}

	routingKey := contracts.RouteMissionRespPrefix + offer.missionID
	if err := n.pub.Publish(contracts.ExchangeDispatchTopic, routingKey, body); err != nil {
		n.logger.Error(ctx, "offer_response_publish_failed", "Failed to publish offer outcome", err,
			map[string]any{"offer_id": offer.offerID, "outcome": outcome, "routing_key": routingKey})
		return
	}

	n.logger.Info(ctx, "offer_response_published", "Offer outcome published",
		map[string]any{"offer_id": offer.offerID, "outcome": outcome, "routing_key": routingKey})
}

// RunOfferConsumer consumes offer requests from the marketplace services
// and turns them into live offers. Blocks until ctx is cancelled.
func (n *Notifier) RunOfferConsumer(ctx context.Context, client *rabbitmq.Client, prefetch int) error {
	return client.Consume(ctx, contracts.QueueMissionOffers, "dispatch-offer-consumer", prefetch,
		func(ctx context.Context, d amqp.Delivery) error {
			var req contracts.MissionOfferRequest
			if err := json.Unmarshal(d.Body, &req); err != nil {
				return fmt.Errorf("decode offer request: %w", err)
			}
			return n.handleOfferRequest(ctx, req)
		})
}

// handleOfferRequest validates an inbound offer request and opens the offer.
func (n *Notifier) handleOfferRequest(ctx context.Context, req contracts.MissionOfferRequest) error {
	if req.MissionID == "" || req.DriverID == "" {
		return errors.New("offer request missing mission or driver id")
	}
	ctx = n.logger.WithMissionID(ctx, req.MissionID)

	if !n.presence.IsOnline(req.DriverID) {
		n.logger.Info(ctx, "offer_request_skipped", "Target driver has no live dispatch connection",
			map[string]any{"driver_id": req.DriverID})
		return fmt.Errorf("driver %s is offline", req.DriverID)
	}

	m, err := n.missions.FindByID(ctx, req.MissionID)
	if err != nil {
		return fmt.Errorf("resolve mission %s: %w", req.MissionID, err)
	}
	if m.HasDriver() || m.Status.Terminal() {
		n.logger.Info(ctx, "offer_request_skipped", "Mission is no longer open for offers",
			map[string]any{"status": m.Status.String()})
		return nil
	}

	_, err = n.OfferMission(ctx, m, req.DriverID, n.offerTTL)
	return err
}

// remainingSeconds computes the countdown from the absolute expiry,
// clamped at zero.
func remainingSeconds(expiresAt, now time.Time) int {
	remaining := int(expiresAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// envelope stamps outbound messages with the producer headers.
func (n *Notifier) envelope() contracts.Envelope {
	return contracts.Envelope{
		CorrelationID: uuid.NewString(),
		Producer:      producerName,
		SentAt:        time.Now().UTC(),
	}
}
