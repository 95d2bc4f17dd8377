package contracts

import "time"

// WSMissionOffer is the point-in-time offer snapshot broadcast on a
// mission topic. Every broadcast constructs a fresh instance so
// RemainingSeconds always reflects the current countdown.
type WSMissionOffer struct {
	Type             string      `json:"type"` // "mission_offer"
	OfferID          string      `json:"offer_id"`
	MissionID        string      `json:"mission_id"`
	OfferToken       string      `json:"offer_token"`
	Route            RoutePlan   `json:"route"`
	Cost             float64     `json:"cost"`
	ItemSummary      string      `json:"item_summary,omitempty"`
	RemainingSeconds int         `json:"remaining_seconds"`
	Status           string      `json:"status"`
	Client           ContactInfo `json:"client"`
	PlannedAt        *time.Time  `json:"planned_at,omitempty"`
	Booked           bool        `json:"booked"`
	Envelope
}

// WSMissionStatus mirrors mission lifecycle updates pushed to topic
// subscribers (client and assigned driver).
type WSMissionStatus struct {
	Type      string `json:"type"` // "mission_status_update"
	MissionID string `json:"mission_id"`
	Status    string `json:"status"`
	DriverID  string `json:"driver_id,omitempty"`
	Booked    bool   `json:"booked"`
	Envelope
}

// MissionOfferResponse is published to RabbitMQ when a driver answers an
// offer. Routing key: "mission.response.{mission_id}" on ExchangeDispatchTopic.
type MissionOfferResponse struct {
	OfferID    string    `json:"offer_id"`
	MissionID  string    `json:"mission_id"`
	DriverID   string    `json:"driver_id"`
	Accepted   bool      `json:"accepted"`
	AnsweredAt time.Time `json:"answered_at"`
	Envelope
}

// MissionOfferRequest is consumed from the marketplace services asking the
// dispatch channel to offer a mission to a specific driver.
// Routing key: "mission.offer.{mission_id}" on ExchangeMissionTopic.
type MissionOfferRequest struct {
	MissionID string `json:"mission_id"`
	DriverID  string `json:"driver_id"`
	Envelope
}
