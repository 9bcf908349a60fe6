package service

import (
	"context"

	"ride-share/internal/ride-service/domain"
)

func (s *RideService) GetRide(ctx context.Context, id string) (*domain.Ride, error) {
	return s.store.Get(ctx, id)
}

// ListRides returns upcoming rides matching filter, soonest first.
func (s *RideService) ListRides(ctx context.Context, filter domain.Filter) ([]*domain.Ride, error) {
	now := s.now()
	filter.DepartingAfter = &now
	filter.DriverID, filter.RiderID = "", ""
	return s.list(ctx, filter)
}

// ListRidesForUser returns the rides the user drives, or with asRider the
// rides the user holds a reservation on. Past rides are included.
func (s *RideService) ListRidesForUser(ctx context.Context, userID string, asRider bool) ([]*domain.Ride, error) {
	if userID == "" {
		return nil, domain.InvalidArgumentf("user id is required")
	}
	var filter domain.Filter
	if asRider {
		filter.RiderID = userID
	} else {
		filter.DriverID = userID
	}
	return s.list(ctx, filter)
}

func (s *RideService) list(ctx context.Context, filter domain.Filter) ([]*domain.Ride, error) {
	rides, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if rides == nil {
		rides = []*domain.Ride{}
	}
	return rides, nil
}
