package websocket

import (
	"context"
	"sync"
	"time"

	"move-market/internal/domain/mission"
	"move-market/internal/domain/user"
	"move-market/internal/ports"
)

// fakeMissionRepo is an in-memory ports.MissionRepository.
type fakeMissionRepo struct {
	mu       sync.Mutex
	missions map[string]*mission.Mission
	assigned []assignment
	findErr  error
}

type assignment struct {
	missionID string
	driverID  string
	email     string
}

func newFakeMissionRepo(missions ...*mission.Mission) *fakeMissionRepo {
	r := &fakeMissionRepo{missions: make(map[string]*mission.Mission)}
	for _, m := range missions {
		r.missions[m.ID] = m
	}
	return r
}

func (r *fakeMissionRepo) FindByID(_ context.Context, id string) (*mission.Mission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	m, ok := r.missions[id]
	if !ok {
		return nil, ports.ErrMissionNotFound
	}
	return m, nil
}

func (r *fakeMissionRepo) ListOpen(_ context.Context, limit int) ([]*mission.Mission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*mission.Mission, 0, len(r.missions))
	for _, m := range r.missions {
		if m.Status == mission.StatusRequested || m.Status == mission.StatusOffered {
			out = append(out, m)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeMissionRepo) UpdateStatus(_ context.Context, id string, status mission.Status, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.missions[id]
	if !ok {
		return ports.ErrMissionNotFound
	}
	return m.SetStatus(status)
}

func (r *fakeMissionRepo) AssignDriver(_ context.Context, missionID, driverID, driverEmail string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.missions[missionID]
	if !ok || m.HasDriver() {
		return ports.ErrMissionNotFound
	}
	m.Assign(driverID, driverEmail)
	r.assigned = append(r.assigned, assignment{missionID: missionID, driverID: driverID, email: driverEmail})
	return nil
}

func (r *fakeMissionRepo) assignments() []assignment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]assignment(nil), r.assigned...)
}

// fakeUserRepo is an in-memory ports.UserRepository keyed by id and email.
type fakeUserRepo struct {
	byID    map[string]*user.User
	byEmail map[string]*user.User
}

func newFakeUserRepo(users ...*user.User) *fakeUserRepo {
	r := &fakeUserRepo{byID: make(map[string]*user.User), byEmail: make(map[string]*user.User)}
	for _, u := range users {
		r.byID[u.ID] = u
		r.byEmail[u.Email] = u
	}
	return r
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, ports.ErrUserNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	u, ok := r.byEmail[email]
	if !ok {
		return nil, ports.ErrUserNotFound
	}
	return u, nil
}

// fakeUOW runs the callback without a real transaction.
type fakeUOW struct {
	calls int
	err   error
}

func (u *fakeUOW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	u.calls++
	if u.err != nil {
		return u.err
	}
	return fn(ctx)
}

// fakePusher records topic broadcasts and direct driver pushes.
type fakePusher struct {
	mu         sync.Mutex
	messages   []topicMessage
	driverMsgs []driverMessage
}

type topicMessage struct {
	topic string
	msg   any
}

type driverMessage struct {
	driverID string
	msg      any
}

func (f *fakePusher) PublishTopic(topic string, msg any) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, topicMessage{topic: topic, msg: msg})
	return 1
}

func (f *fakePusher) PublishDriver(driverID string, msg any) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.driverMsgs = append(f.driverMsgs, driverMessage{driverID: driverID, msg: msg})
	return 1
}

func (f *fakePusher) published() []topicMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]topicMessage(nil), f.messages...)
}

func (f *fakePusher) driverInbox(driverID string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, dm := range f.driverMsgs {
		if dm.driverID == driverID {
			out = append(out, dm.msg)
		}
	}
	return out
}

// fakePublisher records broker publishes.
type fakePublisher struct {
	mu     sync.Mutex
	events []brokerEvent
	err    error
}

type brokerEvent struct {
	exchange   string
	routingKey string
	body       []byte
}

func (f *fakePublisher) Publish(exchange, routingKey string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, brokerEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (f *fakePublisher) publishedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.events))
	for _, e := range f.events {
		keys = append(keys, e.routingKey)
	}
	return keys
}
