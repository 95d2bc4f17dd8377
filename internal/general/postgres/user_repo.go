package postgres

import (
	"context"
	"errors"
	"fmt"

	"move-market/internal/domain/user"
	"move-market/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepo reads users using pgx and plain SQL. User CRUD belongs to the
// marketplace services; the dispatch channel only resolves identities.
type UserRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepo constructs a new UserRepo bound to the given pool.
func NewUserRepo(pool *pgxpool.Pool) ports.UserRepository {
	return &UserRepo{pool: pool}
}

func (repo *UserRepo) q(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return repo.pool
}

const userColumns = `
	u.id, u.created_at, u.updated_at,
	u.email, u.first_name, u.last_name, u.phone_number,
	u.role, u.status, u.license_number, u.truck_id`

// GetByID returns one user by id, or ports.ErrUserNotFound.
func (repo *UserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	row := repo.q(ctx).QueryRow(ctx, `
		SELECT`+userColumns+`
		FROM users u
		WHERE u.id = $1
	`, id)
	return scanUser(row)
}

// GetByEmail returns one user by email, or ports.ErrUserNotFound.
func (repo *UserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	row := repo.q(ctx).QueryRow(ctx, `
		SELECT`+userColumns+`
		FROM users u
		WHERE u.email = $1
	`, email)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*user.User, error) {
	var (
		out           user.User
		roleText      string
		statusText    string
		licenseNumber *string
		truckID       *string
	)

	err := row.Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt,
		&out.Email, &out.FirstName, &out.LastName, &out.PhoneNumber,
		&roleText, &statusText, &licenseNumber, &truckID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	out.Role = user.Role(roleText)
	out.Status = user.Status(statusText)
	if licenseNumber != nil {
		out.LicenseNumber = *licenseNumber
	}
	if truckID != nil {
		out.TruckID = *truckID
	}

	return &out, nil
}
