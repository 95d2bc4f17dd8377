package websocket

import (
	"context"

	"github.com/gorilla/websocket"
)

// subscribe registers a connection on a topic. Callers must have run the
// subscription authorizer first; the broker itself does no entitlement
// checks.
func (ch *Channel) subscribe(topic string, conn *websocket.Conn) {
	ch.subsMu.Lock()
	defer ch.subsMu.Unlock()

	set, ok := ch.subs[topic]
	if !ok {
		set = make(map[*websocket.Conn]struct{})
		ch.subs[topic] = set
	}
	set[conn] = struct{}{}
}

// unsubscribeConn removes a connection from every topic. Called on
// disconnect.
func (ch *Channel) unsubscribeConn(conn *websocket.Conn) {
	ch.subsMu.Lock()
	defer ch.subsMu.Unlock()

	for topic, set := range ch.subs {
		delete(set, conn)
		if len(set) == 0 {
			delete(ch.subs, topic)
		}
	}
}

// subscriberCount reports how many connections listen on a topic.
func (ch *Channel) subscriberCount(topic string) int {
	ch.subsMu.Lock()
	defer ch.subsMu.Unlock()
	return len(ch.subs[topic])
}

// registerDriver records a live connection for a driver so offers can be
// pushed to the driver directly, without any topic subscription.
func (ch *Channel) registerDriver(driverID string, conn *websocket.Conn) {
	ch.driversMu.Lock()
	defer ch.driversMu.Unlock()

	set, ok := ch.drivers[driverID]
	if !ok {
		set = make(map[*websocket.Conn]struct{})
		ch.drivers[driverID] = set
	}
	set[conn] = struct{}{}
}

// unregisterDriver drops one connection from the driver's set. Called on
// disconnect and when a session re-binds to a different identity.
func (ch *Channel) unregisterDriver(driverID string, conn *websocket.Conn) {
	ch.driversMu.Lock()
	defer ch.driversMu.Unlock()

	set, ok := ch.drivers[driverID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(ch.drivers, driverID)
	}
}

// driverConnCount reports how many live connections a driver has.
func (ch *Channel) driverConnCount(driverID string) int {
	ch.driversMu.Lock()
	defer ch.driversMu.Unlock()
	return len(ch.drivers[driverID])
}

// PublishDriver pushes a JSON message to every live connection of one
// driver and returns how many were reached.
func (ch *Channel) PublishDriver(driverID string, msg any) int {
	ch.driversMu.Lock()
	conns := make([]*websocket.Conn, 0, len(ch.drivers[driverID]))
	for conn := range ch.drivers[driverID] {
		conns = append(conns, conn)
	}
	ch.driversMu.Unlock()

	delivered := 0
	for _, conn := range conns {
		if err := ch.writeJSON(conn, msg); err != nil {
			ch.logger.Error(context.Background(), "driver_publish_failed",
				"Failed to push message to a driver connection", err,
				map[string]any{"driver_id": driverID})
			continue
		}
		delivered++
	}
	return delivered
}

// PublishTopic broadcasts a JSON message to every subscriber of a topic and
// returns how many subscribers were reached. Iteration happens over a
// snapshot so a concurrent subscribe/disconnect cannot race the fan-out.
func (ch *Channel) PublishTopic(topic string, msg any) int {
	ch.subsMu.Lock()
	conns := make([]*websocket.Conn, 0, len(ch.subs[topic]))
	for conn := range ch.subs[topic] {
		conns = append(conns, conn)
	}
	ch.subsMu.Unlock()

	delivered := 0
	for _, conn := range conns {
		if err := ch.writeJSON(conn, msg); err != nil {
			ch.logger.Error(context.Background(), "topic_publish_failed",
				"Failed to push message to a topic subscriber", err,
				map[string]any{"topic": topic})
			continue
		}
		delivered++
	}
	return delivered
}
