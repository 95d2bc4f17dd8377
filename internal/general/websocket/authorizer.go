package websocket

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"move-market/internal/general/contracts"
	"move-market/internal/ports"
)

var (
	// ErrUnauthenticated marks privileged operations attempted on a session
	// with no identity bound.
	ErrUnauthenticated = errors.New("unauthenticated session")
	// ErrForbidden marks an authenticated identity lacking entitlement for
	// the target mission topic.
	ErrForbidden = errors.New("forbidden")
	// ErrMalformedDestination marks a topic string that does not match the
	// expected /topic/mission/{missionId} shape.
	ErrMalformedDestination = errors.New("malformed destination")
)

// missionIDSegment is the 0-indexed position of the mission id in a
// slash-split destination: ["", "topic", "mission", "{missionId}"].
const missionIDSegment = 3

// parseMissionTopic extracts the mission id from a destination. The second
// return value is false for destinations outside the mission namespace,
// which pass through unchecked.
func parseMissionTopic(destination string) (string, bool, error) {
	if !strings.HasPrefix(destination, contracts.TopicMissionPrefix) {
		return "", false, nil
	}

	segments := strings.Split(destination, "/")
	if len(segments) <= missionIDSegment {
		return "", true, ErrMalformedDestination
	}
	missionID := segments[missionIDSegment]
	if missionID == "" || len(segments) > missionIDSegment+1 {
		return "", true, ErrMalformedDestination
	}

	return missionID, true, nil
}

// authorizeSubscribe decides whether the session may subscribe to the
// destination. It runs synchronously in the frame-handling path so no
// subscription is ever established before the decision is made.
//
// Mission topics are granted only to the mission's client or its assigned
// driver. Every decision is logged with enough context to audit it; the
// error returned to the caller carries none of the looked-up claims.
func (ch *Channel) authorizeSubscribe(ctx context.Context, sess *Session, destination string) error {
	missionID, checked, err := parseMissionTopic(destination)
	if err != nil {
		ch.logger.Error(ctx, "subscribe_rejected", "Destination does not match the mission topic shape", err,
			map[string]any{"destination": destination, "email": sess.Email()})
		return err
	}
	if !checked {
		// not a mission topic: pass through unchanged
		return nil
	}

	if !sess.Authenticated() {
		ch.logger.Error(ctx, "subscribe_rejected", "Anonymous session attempted a mission subscription", ErrUnauthenticated,
			map[string]any{"mission_id": missionID})
		return ErrUnauthenticated
	}

	m, err := ch.missions.FindByID(ctx, missionID)
	if err != nil {
		if errors.Is(err, ports.ErrMissionNotFound) {
			ch.logger.Error(ctx, "subscribe_rejected", "Mission referenced by subscription does not exist", err,
				map[string]any{"mission_id": missionID, "email": sess.Email()})
			return ports.ErrMissionNotFound
		}
		return fmt.Errorf("resolve mission %s: %w", missionID, err)
	}

	email := sess.Email()
	isClient := m.ClientEmail == email
	isDriver := m.Driver != nil && m.Driver.Email == email
	if !isClient && !isDriver {
		ch.logger.Error(ctx, "subscribe_rejected", "Identity is neither the mission client nor its driver", ErrForbidden,
			map[string]any{"mission_id": missionID, "email": email, "driver_id": sess.DriverID()})
		return ErrForbidden
	}

	ch.logger.Info(ctx, "subscribe_allowed", "Mission topic subscription granted",
		map[string]any{"mission_id": missionID, "email": email, "as_client": isClient, "as_driver": isDriver})

	return nil
}
