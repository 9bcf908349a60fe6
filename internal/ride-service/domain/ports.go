package domain

import "context"

// RideStore is the persistence port. It is the serialization point for seat
// mutations: Save and Delete are compare-and-swap on the ride's version.
type RideStore interface {
	// Get returns a copy of the ride or ErrNotFound.
	Get(ctx context.Context, id string) (*Ride, error)

	// List returns rides matching filter ordered by departure time ascending.
	List(ctx context.Context, filter Filter) ([]*Ride, error)

	// Save inserts a ride whose version is 0, or replaces the stored ride if
	// its version equals ride.Version(). It returns the stored copy with the
	// new version, ErrVersionConflict on a stale write, ErrNotFound when
	// replacing a missing ride and ErrConflict when inserting a duplicate id.
	Save(ctx context.Context, ride *Ride) (*Ride, error)

	// Delete removes the ride if its stored version equals version.
	Delete(ctx context.Context, id string, version int64) error
}

// PriceOracle estimates a ride price. Any error means "no estimate".
type PriceOracle interface {
	Estimate(ctx context.Context, seats int, origin, destination string) (float64, error)
}

// EventNotifier publishes committed domain events. Delivery is best-effort.
type EventNotifier interface {
	Publish(ctx context.Context, event DomainEvent) error
}

// IdentityVerifier resolves an opaque credential to an identity, or fails
// with ErrUnauthenticated.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}
