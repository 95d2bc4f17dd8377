package contracts

import "time"

// Envelope adds cross-cutting headers all messages may carry.
type Envelope struct {
	CorrelationID string    `json:"correlation_id,omitempty"` // Correlation for tracing across services
	Producer      string    `json:"producer,omitempty"`       // Producer service name, e.g. "dispatch-service"
	SentAt        time.Time `json:"sent_at,omitempty"`        // ISO-8601 send time (UTC)
}

// ContactInfo is the client contact block included in offer notifications.
type ContactInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// RoutePlan carries the pre-computed route figures for a mission; distance
// and duration come from the external routing collaborator, never computed
// here.
type RoutePlan struct {
	FromAddress string  `json:"from_address"`
	ToAddress   string  `json:"to_address"`
	DistanceKm  float64 `json:"distance_km"`
	DurationMin int     `json:"duration_minutes"`
}
