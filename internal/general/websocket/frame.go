package websocket

import (
	"encoding/json"
	"errors"
	"strings"
)

// FrameType enumerates the commands a client can send on the dispatch
// channel. Each variant is handled by its own function; there is no generic
// interceptor branching internally on command names.
type FrameType int

const (
	FrameOther FrameType = iota
	FrameConnect
	FrameSubscribe
	FrameSend
	FrameDisconnect
)

// String returns the wire name of the frame type.
func (t FrameType) String() string {
	switch t {
	case FrameConnect:
		return "connect"
	case FrameSubscribe:
		return "subscribe"
	case FrameSend:
		return "send"
	case FrameDisconnect:
		return "disconnect"
	default:
		return "other"
	}
}

// parseFrameType maps a wire name onto the tagged variant. Unknown names
// become FrameOther and pass through untouched.
func parseFrameType(s string) FrameType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "connect":
		return FrameConnect
	case "subscribe":
		return FrameSubscribe
	case "send":
		return FrameSend
	case "disconnect":
		return FrameDisconnect
	default:
		return FrameOther
	}
}

// Frame is the minimal envelope every inbound message carries.
type Frame struct {
	Type        FrameType
	Destination string
	Token       string // optional bearer credential on Connect frames
	Data        json.RawMessage
}

var errEmptyFrame = errors.New("empty frame")

// decodeFrame parses one inbound text message into a Frame.
func decodeFrame(payload []byte) (*Frame, error) {
	if len(payload) == 0 {
		return nil, errEmptyFrame
	}

	var wire struct {
		Type        string          `json:"type"`
		Destination string          `json:"destination,omitempty"`
		Token       string          `json:"token,omitempty"`
		Data        json.RawMessage `json:"data,omitempty"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, err
	}

	return &Frame{
		Type:        parseFrameType(wire.Type),
		Destination: strings.TrimSpace(wire.Destination),
		Token:       strings.TrimSpace(wire.Token),
		Data:        wire.Data,
	}, nil
}
