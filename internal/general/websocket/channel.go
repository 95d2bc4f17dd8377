package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"move-market/internal/general/contracts"
	"move-market/internal/general/logger"
	"move-market/internal/general/presence"
	"move-market/internal/general/token"
	"move-market/internal/ports"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
	readWindow       = 60 * time.Second
	pingInterval     = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Channel accepts persistent dispatch connections, authenticates the
// handshake credential, authorizes topic subscriptions, and fans mission
// events out to subscribers. One goroutine per connection; the presence
// registry and subscription table are the shared state.
type Channel struct {
	logger   *logger.Logger
	tokens   *token.Manager
	presence *presence.Registry
	missions ports.MissionRepository
	pub      EventPublisher
	notifier *Notifier

	writeLocks sync.Map // *websocket.Conn -> *sync.Mutex

	subsMu sync.Mutex
	subs   map[string]map[*websocket.Conn]struct{}

	driversMu sync.Mutex
	drivers   map[string]map[*websocket.Conn]struct{}
}

// NewChannel creates the dispatch channel handler.
func NewChannel(log *logger.Logger, tokens *token.Manager, reg *presence.Registry, missions ports.MissionRepository, pub EventPublisher) *Channel {
	return &Channel{
		logger:   log,
		tokens:   tokens,
		presence: reg,
		missions: missions,
		pub:      pub,
		subs:     make(map[string]map[*websocket.Conn]struct{}),
		drivers:  make(map[string]map[*websocket.Conn]struct{}),
	}
}

// AttachNotifier wires the dispatch notifier after construction; the
// notifier publishes through the channel and the channel routes offer
// responses to the notifier.
func (ch *Channel) AttachNotifier(n *Notifier) {
	ch.notifier = n
}

// Connect handles a dispatch WebSocket connection for its whole lifetime.
//
// The bearer credential is read once at handshake. A missing or invalid
// credential is logged and tolerated: the connection proceeds anonymous and
// every privileged frame is rejected per-operation instead.
func (ch *Channel) Connect(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ch.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	// Teardown order (LIFO on return):
	defer conn.Close()               // close the socket last
	defer ch.writeLocks.Delete(conn) // forget per-connection mutex (idempotent)
	defer ch.unsubscribeConn(conn)   // drop all topic subscriptions

	conn.SetReadLimit(1 << 20) // 1 MiB

	sess := newSession()

	// handshake-time authentication; failures leave the session anonymous
	if raw, err := token.FromAuthorization(r); err == nil {
		ch.authenticate(r.Context(), conn, sess, raw)
	} else if !errors.Is(err, token.ErrNoAuthHeader) {
		ch.logger.Error(r.Context(), "ws_auth_malformed_credential", "Malformed handshake credential; proceeding anonymous", err, nil)
	}

	// presence bookkeeping follows the session, not the authenticator:
	// whatever driver id is bound when the connection ends goes offline.
	defer func() {
		if driverID := sess.DriverID(); driverID != "" {
			ch.unregisterDriver(driverID, conn)
			ch.presence.MarkOffline(driverID)
			ch.publishPresence(driverID, false)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	// ping loop with the per-connection writer lock; done stops it when the
	// read loop returns
	done := make(chan struct{})
	defer close(done)
	go ch.pingLoop(r.Context(), conn, done)

	ch.logger.Info(r.Context(), "ws_connected", "Dispatch connection opened",
		map[string]any{"authenticated": sess.Authenticated(), "driver_id": sess.DriverID()})

	// read loop: explicit dispatch on the frame variant
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWindow))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				ch.logger.Error(r.Context(), "ws_unexpected_close", "Dispatch connection closed unexpectedly", err,
					map[string]any{"driver_id": sess.DriverID()})
				ch.wsWriteClose(conn, websocket.CloseInternalServerErr, "internal error")
			} else {
				ch.logger.Info(r.Context(), "ws_connection_closed", "Dispatch connection closed normally",
					map[string]any{"driver_id": sess.DriverID()})
				ch.wsWriteClose(conn, websocket.CloseNormalClosure, "bye")
			}
			return
		}

		frame, err := decodeFrame(payload)
		if err != nil {
			ch.sendError(conn, "bad_frame", "bad json")
			continue
		}

		switch frame.Type {
		case FrameConnect:
			ch.handleConnect(r.Context(), conn, sess, frame)

		case FrameSubscribe:
			ch.handleSubscribe(r.Context(), conn, sess, frame)

		case FrameSend:
			ch.handleSend(r.Context(), conn, sess, frame)

		case FrameDisconnect:
			ch.logger.Info(r.Context(), "ws_client_disconnect", "Client requested disconnect",
				map[string]any{"driver_id": sess.DriverID()})
			ch.wsWriteClose(conn, websocket.CloseNormalClosure, "bye")
			return

		case FrameOther:
			// tolerated, never authorized by accident
			ch.sendError(conn, "unknown_frame", "unknown frame type")
		}
	}
}

// pingLoop sends periodic pings with the per-connection writer lock until
// the connection ends or a write fails.
func (ch *Channel) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-ticker.C:
			mu := ch.lockOf(conn)
			mu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(ctrlTimeout))
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
			mu.Unlock()
			if err != nil {
				// Close socket to unblock reader; goroutine exits.
				_ = conn.Close()
				ch.logger.Error(ctx, "ws_ping_failed", "Failed to send ping", err, nil)
				return
			}
		}
	}
}

// authenticate verifies a raw access token and binds the identity to the
// session. Verification failure is logged and swallowed: the handshake is
// never rejected for a bad credential.
func (ch *Channel) authenticate(ctx context.Context, conn *websocket.Conn, sess *Session, raw string) {
	claims, err := ch.tokens.VerifyKind(raw, token.KindAccess)
	if err != nil {
		ch.logger.Error(ctx, "ws_auth_failed", "Handshake credential rejected; session stays anonymous", err, nil)
		return
	}

	hadDriver := sess.DriverID()
	sess.bind(claims)

	driverID := sess.DriverID()
	if hadDriver != "" && hadDriver != driverID {
		// a re-sent credential re-bound the session to a different identity
		ch.unregisterDriver(hadDriver, conn)
		ch.presence.MarkOffline(hadDriver)
		ch.publishPresence(hadDriver, false)
	}
	if driverID != "" && driverID != hadDriver {
		ch.registerDriver(driverID, conn)
		ch.presence.MarkOnline(driverID)
		ch.publishPresence(driverID, true)
	}

	ch.logger.Info(ctx, "ws_authenticated", "Identity bound to dispatch session",
		map[string]any{"email": sess.Email(), "driver_id": sess.DriverID()})

	ch.sendAck(conn, "auth_success", map[string]any{
		"email":   sess.Email(),
		"user_id": sess.UserID(),
	})
}

// handleConnect processes an explicit Connect frame. Clients that cannot
// set the Authorization header at upgrade time present the credential here.
func (ch *Channel) handleConnect(ctx context.Context, conn *websocket.Conn, sess *Session, frame *Frame) {
	if frame.Token == "" {
		// anonymous connect is tolerated, same as a headerless handshake
		ch.sendAck(conn, "connect_ack", map[string]any{"authenticated": sess.Authenticated()})
		return
	}

	raw := frame.Token
	if stripped, err := token.StripBearer(raw); err == nil {
		raw = stripped
	}
	ch.authenticate(ctx, conn, sess, raw)
}

// handleSubscribe runs the subscription authorizer and, on success,
// registers the connection on the destination topic. Failures abort the
// subscribe and surface as an access-denied frame; the connection stays
// open.
func (ch *Channel) handleSubscribe(ctx context.Context, conn *websocket.Conn, sess *Session, frame *Frame) {
	if frame.Destination == "" {
		ch.sendError(conn, "access_denied", "missing destination")
		return
	}

	if err := ch.authorizeSubscribe(ctx, sess, frame.Destination); err != nil {
		ch.sendError(conn, "access_denied", "subscription denied")
		return
	}

	ch.subscribe(frame.Destination, conn)
	ch.sendAck(conn, "subscribe_ack", map[string]any{"destination": frame.Destination})
}

// handleSend routes client-published payloads. The only inbound publishes
// the dispatch core accepts are offer responses from drivers; everything
// else is acknowledged as unsupported.
func (ch *Channel) handleSend(ctx context.Context, conn *websocket.Conn, sess *Session, frame *Frame) {
	var p struct {
		Action     string `json:"action"`
		OfferToken string `json:"offer_token"`
	}
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		ch.sendError(conn, "bad_frame", "bad send payload")
		return
	}

	switch p.Action {
	case "accept_offer":
		ch.handleOfferResponse(ctx, conn, sess, p.OfferToken, true)
	case "decline_offer":
		ch.handleOfferResponse(ctx, conn, sess, p.OfferToken, false)
	default:
		ch.sendError(conn, "unsupported_action", "unsupported send action")
	}
}

// handleOfferResponse forwards a driver's answer to the notifier. The
// session's driver id travels along so the answer only counts when the
// offer token was issued to the presenting identity.
func (ch *Channel) handleOfferResponse(ctx context.Context, conn *websocket.Conn, sess *Session, offerToken string, accepted bool) {
	if !sess.Authenticated() {
		ch.logger.Error(ctx, "offer_response_rejected", "Anonymous session attempted an offer response", ErrUnauthenticated, nil)
		ch.sendError(conn, "access_denied", "authentication required")
		return
	}

	if accepted {
		missionID, driverID, err := ch.notifier.AcceptOffer(ctx, offerToken, sess.DriverID())
		if err != nil {
			ch.logger.Error(ctx, "offer_accept_rejected", "Offer acceptance rejected", err,
				map[string]any{"email": sess.Email(), "driver_id": sess.DriverID()})
			ch.sendError(conn, "offer_rejected", "offer invalid or expired")
			return
		}
		ch.sendAck(conn, "offer_accept_ack", map[string]any{
			"mission_id": missionID,
			"driver_id":  driverID,
		})
		return
	}

	missionID, driverID, err := ch.notifier.DeclineOffer(ctx, offerToken, sess.DriverID())
	if err != nil {
		ch.logger.Error(ctx, "offer_decline_rejected", "Offer decline rejected", err,
			map[string]any{"email": sess.Email(), "driver_id": sess.DriverID()})
		ch.sendError(conn, "offer_rejected", "offer invalid or expired")
		return
	}
	ch.sendAck(conn, "offer_decline_ack", map[string]any{
		"mission_id": missionID,
		"driver_id":  driverID,
	})
}

// publishPresence mirrors connect/disconnect events onto the dispatch
// exchange so marketplace services can observe driver availability.
func (ch *Channel) publishPresence(driverID string, online bool) {
	body, err := json.Marshal(map[string]any{
		"type":      "driver_presence",
		"driver_id": driverID,
		"online":    online,
		"sent_at":   time.Now().UTC(),
	})
	if err != nil {
		return
	}

	routingKey := contracts.RoutePresencePrefix + driverID
	if err := ch.pub.Publish(contracts.ExchangeDispatchTopic, routingKey, body); err != nil {
		ch.logger.Error(context.Background(), "presence_publish_failed", "Failed to publish presence event", err,
			map[string]any{"driver_id": driverID, "online": online, "routing_key": routingKey})
	}
}
