package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"move-market/internal/domain/mission"
	"move-market/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgx shared by pgxpool.Pool and pgx.Tx. Reads on
// the subscribe-interception path run outside a transaction; writes made
// through the UnitOfWork pick up the tx from context.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// MissionRepo persists missions using pgx and plain SQL.
type MissionRepo struct {
	pool *pgxpool.Pool
}

// NewMissionRepo constructs a new MissionRepo bound to the given pool.
func NewMissionRepo(pool *pgxpool.Pool) ports.MissionRepository {
	return &MissionRepo{pool: pool}
}

// q returns the active transaction when called within UnitOfWork.WithinTx,
// otherwise the pool.
func (repo *MissionRepo) q(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return repo.pool
}

const missionColumns = `
	m.id, m.created_at, m.updated_at,
	m.client_id, m.client_email, m.client_phone,
	m.driver_id, m.driver_email,
	m.from_address, m.to_address, m.distance_km, m.duration_minutes,
	m.cost, m.items, m.status, m.planned_at, m.booked`

// FindByID returns one mission by id, or ports.ErrMissionNotFound.
func (repo *MissionRepo) FindByID(ctx context.Context, id string) (*mission.Mission, error) {
	row := repo.q(ctx).QueryRow(ctx, `
		SELECT`+missionColumns+`
		FROM missions m
		WHERE m.id = $1
	`, id)

	m, err := scanMission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrMissionNotFound
		}
		return nil, fmt.Errorf("find mission by id: %w", err)
	}
	return m, nil
}

// ListOpen returns missions still waiting for a driver, oldest first.
func (repo *MissionRepo) ListOpen(ctx context.Context, limit int) ([]*mission.Mission, error) {
	rows, err := repo.q(ctx).Query(ctx, `
		SELECT`+missionColumns+`
		FROM missions m
		WHERE m.status = $1
		ORDER BY m.created_at ASC
		LIMIT $2
	`, mission.StatusRequested.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query open missions: %w", err)
	}
	defer rows.Close()

	var out []*mission.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}

// UpdateStatus moves a mission to the given status.
func (repo *MissionRepo) UpdateStatus(ctx context.Context, id string, status mission.Status, ts time.Time) error {
	if !status.Valid() {
		return mission.ErrInvalidStatus
	}

	tag, err := repo.q(ctx).Exec(ctx, `
		UPDATE missions
		SET status = $2,
		    booked = ($2 IN ('BOOKED','IN_PROGRESS','COMPLETED')),
		    updated_at = $3
		WHERE id = $1
	`, id, status.String(), ts.UTC())
	if err != nil {
		return fmt.Errorf("update mission status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrMissionNotFound
	}
	return nil
}

// AssignDriver binds an accepting driver to the mission and books it.
// Intended to run within UnitOfWork.WithinTx alongside the offer-response
// bookkeeping so assignment is atomic.
func (repo *MissionRepo) AssignDriver(ctx context.Context, missionID, driverID, driverEmail string, bookedAt time.Time) error {
	tag, err := repo.q(ctx).Exec(ctx, `
		UPDATE missions
		SET driver_id = $2, driver_email = $3,
		    status = $4, booked = TRUE, updated_at = $5
		WHERE id = $1 AND driver_id IS NULL
	`, missionID, driverID, driverEmail, mission.StatusBooked.String(), bookedAt.UTC())
	if err != nil {
		return fmt.Errorf("assign driver: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// either the mission is gone or another driver won the race
		return ports.ErrMissionNotFound
	}
	return nil
}

// scanMission hydrates one mission from a row using the missionColumns order.
func scanMission(row pgx.Row) (*mission.Mission, error) {
	var (
		m           mission.Mission
		driverID    *string
		driverEmail *string
		itemsRaw    []byte
		statusText  string
	)

	err := row.Scan(
		&m.ID, &m.CreatedAt, &m.UpdatedAt,
		&m.ClientID, &m.ClientEmail, &m.ClientPhone,
		&driverID, &driverEmail,
		&m.FromAddress, &m.ToAddress, &m.DistanceKm, &m.DurationMin,
		&m.Cost, &itemsRaw, &statusText, &m.PlannedAt, &m.Booked,
	)
	if err != nil {
		return nil, err
	}

	if driverID != nil && *driverID != "" {
		m.Driver = &mission.AssignedDriver{ID: *driverID}
		if driverEmail != nil {
			m.Driver.Email = *driverEmail
		}
	}

	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &m.Items); err != nil {
			return nil, fmt.Errorf("decode mission items: %w", err)
		}
	}

	status, err := mission.ParseStatus(statusText)
	if err != nil {
		return nil, fmt.Errorf("mission %s: %w", m.ID, err)
	}
	m.Status = status

	return &m, nil
}
