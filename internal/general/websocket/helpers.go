package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsWriteClose sends a close control frame with the given code and reason.
func (ch *Channel) wsWriteClose(conn *websocket.Conn, code int, reason string) {
	mu := ch.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
	ch.writeLocks.Delete(conn)
}

// wsWriteMessage sets a short write deadline and writes a message.
func (ch *Channel) wsWriteMessage(conn *websocket.Conn, mt int, payload []byte) error {
	mu := ch.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(mt, payload)
}

// lockOf returns the mutex for a specific connection
func (ch *Channel) lockOf(conn *websocket.Conn) *sync.Mutex {
	if v, ok := ch.writeLocks.Load(conn); ok {
		if mu, ok := v.(*sync.Mutex); ok && mu != nil {
			return mu
		}
	}
	mu := &sync.Mutex{}
	actual, _ := ch.writeLocks.LoadOrStore(conn, mu)
	return actual.(*sync.Mutex)
}

// writeJSON marshals v and writes a single TextMessage to the given connection.
func (ch *Channel) writeJSON(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	mu := ch.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// sendError pushes a terse error frame to the client. Internal claims and
// lookup results never ride along; the reason is a fixed public string.
func (ch *Channel) sendError(conn *websocket.Conn, kind, reason string) {
	_ = ch.writeJSON(conn, map[string]any{
		"type":  "error",
		"kind":  kind,
		"error": reason,
	})
}

// sendAck confirms a processed frame.
func (ch *Channel) sendAck(conn *websocket.Conn, ackType string, fields map[string]any) {
	msg := map[string]any{
		"type":    ackType,
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		msg[k] = v
	}
	_ = ch.writeJSON(conn, msg)
}
