package presence

import (
	"context"
	"sync"

	"move-market/internal/general/logger"
)

// Registry tracks which drivers currently hold at least one live dispatch
// connection. Connect/disconnect events arrive from arbitrary connection
// goroutines, so every mutation goes through the registry's own lock.
//
// Sessions are reference-counted per driver id: a driver with two devices
// connected stays online until the last one disconnects.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]int
	logger   *logger.Logger
}

// NewRegistry creates an empty presence registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]int),
		logger:   log,
	}
}

// MarkOnline records one more live session for the driver.
func (r *Registry) MarkOnline(driverID string) {
	if driverID == "" {
		return
	}

	r.mu.Lock()
	r.sessions[driverID]++
	count := r.sessions[driverID]
	r.mu.Unlock()

	r.logger.Info(context.Background(), "driver_online", "Driver marked online",
		map[string]any{"driver_id": driverID, "sessions": count})
}

// MarkOffline records one session ending for the driver. Calling it for a
// driver that was never registered is a no-op.
func (r *Registry) MarkOffline(driverID string) {
	if driverID == "" {
		return
	}

	r.mu.Lock()
	count, ok := r.sessions[driverID]
	if ok {
		count--
		if count <= 0 {
			delete(r.sessions, driverID)
			count = 0
		} else {
			r.sessions[driverID] = count
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.logger.Info(context.Background(), "driver_offline_event", "Driver session ended",
		map[string]any{"driver_id": driverID, "sessions": count})
}

// IsOnline reports whether the driver has at least one live session.
func (r *Registry) IsOnline(driverID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[driverID] > 0
}

// ListOnline returns a snapshot of all online driver ids. Callers get a
// copy, never a live view of the backing map.
func (r *Registry) ListOnline() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of distinct online drivers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
