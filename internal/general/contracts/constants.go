package contracts

// Exchanges
const (
	ExchangeMissionTopic  = "mission_topic"
	ExchangeDispatchTopic = "dispatch_topic"
)

// Queues
const (
	QueueMissionOffers    = "mission_offers"
	QueueMissionResponses = "mission_responses"
	QueuePresenceEvents   = "presence_events"
)

// Routing patterns
const (
	RouteMissionOfferPrefix = "mission.offer."     // {mission_id}
	RouteMissionRespPrefix  = "mission.response."  // {mission_id}
	RoutePresencePrefix     = "dispatch.presence." // {driver_id}
)

// TopicMissionPrefix is the in-process broadcast topic for a mission;
// subscribers address it as "/topic/mission/{missionId}".
const TopicMissionPrefix = "/topic/mission/"
