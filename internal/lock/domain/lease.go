// Package domain contains the lock lease entity.
package domain

import "time"

// Lease represents a named lock held by one owner until it expires. A lease
// whose expiry has passed is free for any owner to take over; there is no
// separate released state.
type Lease struct {
	Name       string
	Owner      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// ExpiredAt reports whether the lease is expired at the given instant.
func (l *Lease) ExpiredAt(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}
