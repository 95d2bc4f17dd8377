package ports

import (
	"context"
	"errors"
	"time"

	"move-market/internal/domain/mission"
	"move-market/internal/domain/user"
)

// ErrMissionNotFound is returned by MissionRepository lookups when the
// referenced mission does not exist.
var ErrMissionNotFound = errors.New("mission not found")

// ErrUserNotFound is returned by UserRepository lookups for absent users.
var ErrUserNotFound = errors.New("user not found")

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MissionRepository defines the mission reads and writes the dispatch
// channel depends on. Full marketplace CRUD lives in other services.
type MissionRepository interface {
	FindByID(ctx context.Context, id string) (*mission.Mission, error)
	ListOpen(ctx context.Context, limit int) ([]*mission.Mission, error)
	UpdateStatus(ctx context.Context, id string, status mission.Status, ts time.Time) error
	AssignDriver(ctx context.Context, missionID, driverID, driverEmail string, bookedAt time.Time) error
}

// UserRepository defines the identity reads used when offering missions.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}
