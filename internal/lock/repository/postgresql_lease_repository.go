// Package repository implements PostgreSQL persistence for lock leases.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/schoolops/internal/database"
	apperrors "github.com/allisson/schoolops/internal/errors"
	"github.com/allisson/schoolops/internal/lock/domain"
)

// PostgreSQLLeaseRepository implements lease persistence using PostgreSQL.
type PostgreSQLLeaseRepository struct {
	db *sql.DB
}

// NewPostgreSQLLeaseRepository creates a new PostgreSQLLeaseRepository.
func NewPostgreSQLLeaseRepository(db *sql.DB) *PostgreSQLLeaseRepository {
	return &PostgreSQLLeaseRepository{db: db}
}

// TryAcquire attempts to take the named lease for the owner in one atomic
// statement. The upsert only wins when the row is absent, already held by the
// same owner, or expired at the given instant.
func (r *PostgreSQLLeaseRepository) TryAcquire(
	ctx context.Context,
	name, owner string,
	now, expiresAt time.Time,
) (bool, error) {
	query := `
		INSERT INTO lock_leases (name, owner, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET owner = EXCLUDED.owner, acquired_at = EXCLUDED.acquired_at, expires_at = EXCLUDED.expires_at
		WHERE lock_leases.owner = EXCLUDED.owner OR lock_leases.expires_at <= EXCLUDED.acquired_at`

	querier := database.GetTx(ctx, r.db)
	result, err := querier.ExecContext(ctx, query, name, owner, now, expiresAt)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to acquire lease")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to get rows affected")
	}

	return rowsAffected == 1, nil
}

// Release frees the named lease if it is still held by the owner.
func (r *PostgreSQLLeaseRepository) Release(ctx context.Context, name, owner string) error {
	query := `DELETE FROM lock_leases WHERE name = $1 AND owner = $2`

	querier := database.GetTx(ctx, r.db)
	if _, err := querier.ExecContext(ctx, query, name, owner); err != nil {
		return apperrors.Wrap(err, "failed to release lease")
	}

	return nil
}

// GetByName returns the current lease row for a name.
func (r *PostgreSQLLeaseRepository) GetByName(ctx context.Context, name string) (*domain.Lease, error) {
	query := `SELECT name, owner, acquired_at, expires_at FROM lock_leases WHERE name = $1`

	querier := database.GetTx(ctx, r.db)
	row := querier.QueryRowContext(ctx, query, name)

	var lease domain.Lease
	err := row.Scan(&lease.Name, &lease.Owner, &lease.AcquiredAt, &lease.ExpiresAt)
	if err != nil {
		if apperrors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrapf(apperrors.ErrNotFound, "lease %s", name)
		}
		return nil, apperrors.Wrap(err, "failed to get lease")
	}

	return &lease, nil
}
