package repository

import (
	"context"
	"sort"
	"sync"

	"ride-share/internal/ride-service/domain"
)

// MemoryRideStore implements domain.RideStore in process memory. Rides are
// copied on the way in and out, so callers never share state with the map.
type MemoryRideStore struct {
	mu    sync.RWMutex
	rides map[string]*domain.Ride
}

// NewMemoryRideStore creates an empty in-memory store
func NewMemoryRideStore() *MemoryRideStore {
	return &MemoryRideStore{
		rides: make(map[string]*domain.Ride),
	}
}

func (s *MemoryRideStore) Get(ctx context.Context, id string) (*domain.Ride, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ride, ok := s.rides[id]
	if !ok {
		return nil, domain.NotFoundf("ride %s not found", id)
	}
	return ride.Clone(), nil
}

func (s *MemoryRideStore) List(ctx context.Context, filter domain.Filter) ([]*domain.Ride, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]*domain.Ride, 0)
	for _, ride := range s.rides {
		if filter.Matches(ride) {
			out = append(out, ride.Clone())
		}
	}
	s.mu.RUnlock()

	sortByDeparture(out)
	return out, nil
}

func (s *MemoryRideStore) Save(ctx context.Context, ride *domain.Ride) (*domain.Ride, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.rides[ride.ID()]
	switch {
	case ride.Version() == 0 && exists:
		return nil, domain.Conflictf("ride %s already exists", ride.ID())
	case ride.Version() != 0 && !exists:
		return nil, domain.NotFoundf("ride %s not found", ride.ID())
	case exists && current.Version() != ride.Version():
		return nil, domain.ErrVersionConflict
	}

	stored := ride.WithVersion(ride.Version() + 1)
	s.rides[ride.ID()] = stored
	return stored.Clone(), nil
}

func (s *MemoryRideStore) Delete(ctx context.Context, id string, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rides[id]
	if !ok {
		return domain.NotFoundf("ride %s not found", id)
	}
	if current.Version() != version {
		return domain.ErrVersionConflict
	}
	delete(s.rides, id)
	return nil
}

// Ping always succeeds; it lets the health check treat every store alike.
func (s *MemoryRideStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// sortByDeparture orders rides by departure time, then id for stability.
func sortByDeparture(rides []*domain.Ride) {
	sort.SliceStable(rides, func(i, j int) bool {
		ti, tj := rides[i].DepartureTime(), rides[j].DepartureTime()
		if ti.Equal(tj) {
			return rides[i].ID() < rides[j].ID()
		}
		return ti.Before(tj)
	})
}
