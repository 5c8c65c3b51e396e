// Package usecase implements the TTL lease lock used to keep periodic loops
// single-flight across worker replicas.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/allisson/schoolops/internal/lock/domain"
)

// LeaseRepository defines lease repository operations.
type LeaseRepository interface {
	TryAcquire(ctx context.Context, name, owner string, now, expiresAt time.Time) (bool, error)
	Release(ctx context.Context, name, owner string) error
	GetByName(ctx context.Context, name string) (*domain.Lease, error)
}

// Locker defines the lock contract consumed by periodic runners.
type Locker interface {
	Acquire(ctx context.Context, name string) (bool, error)
	Release(ctx context.Context, name string) error
}

// LockUseCase implements Locker on top of a lease repository. The lock fails
// closed: any store error reports the lock as not acquired, so a flaky
// database never lets two replicas run the same loop concurrently.
type LockUseCase struct {
	leaseRepo LeaseRepository
	owner     string
	ttl       time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewLockUseCase creates a new LockUseCase. The owner identity is derived from
// the hostname plus a per-process UUID, so two replicas on the same host never
// collide.
func NewLockUseCase(leaseRepo LeaseRepository, ttl time.Duration, clock clockwork.Clock, logger *slog.Logger) *LockUseCase {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &LockUseCase{
		leaseRepo: leaseRepo,
		owner:     fmt.Sprintf("%s-%s", hostname, uuid.Must(uuid.NewV7())),
		ttl:       ttl,
		clock:     clock,
		logger:    logger,
	}
}

// Owner returns the owner identity this process acquires leases under.
func (uc *LockUseCase) Owner() string {
	return uc.owner
}

// Acquire attempts to take the named lease for one TTL window. A false result
// with a nil error means another live owner holds the lease.
func (uc *LockUseCase) Acquire(ctx context.Context, name string) (bool, error) {
	now := uc.clock.Now()
	acquired, err := uc.leaseRepo.TryAcquire(ctx, name, uc.owner, now, now.Add(uc.ttl))
	if err != nil {
		if uc.logger != nil {
			uc.logger.Error("lease acquire failed",
				slog.String("lease", name),
				slog.Any("error", err),
			)
		}
		return false, err
	}

	if acquired && uc.logger != nil {
		uc.logger.Debug("lease acquired",
			slog.String("lease", name),
			slog.String("owner", uc.owner),
			slog.Duration("ttl", uc.ttl),
		)
	}

	return acquired, nil
}

// Release frees the named lease if this process still holds it. Releasing a
// lease taken over by another owner is a no-op.
func (uc *LockUseCase) Release(ctx context.Context, name string) error {
	return uc.leaseRepo.Release(ctx, name, uc.owner)
}
