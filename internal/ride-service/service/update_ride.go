package service

import (
	"context"

	"ride-share/internal/ride-service/domain"
	"ride-share/pkg/logger"
)

// UpdateRide applies patch to a ride the requester drives.
func (s *RideService) UpdateRide(ctx context.Context, requester domain.Identity, id string, patch domain.RidePatch) (*domain.Ride, error) {
	log := s.log(ctx, logger.LogFields{"ride_id": id, "user_id": requester.ID})

	saved, err := s.mutate(ctx, id, func(ride *domain.Ride) error {
		if !ride.IsOwnedBy(requester.ID) {
			return domain.Forbiddenf("only the driver can modify this ride")
		}
		return ride.ApplyPatch(patch, s.now())
	})
	if err != nil {
		log.Debug("update_ride_rejected", domain.Message(err))
		return nil, err
	}

	log.Info("ride_updated", "Ride updated successfully")
	s.publish(ctx, domain.RideUpdatedEvent{
		RideID:    saved.ID(),
		Patch:     patch,
		UserID:    requester.ID,
		Seats:     seatSnapshot(saved),
		UpdatedAt: s.now(),
	})
	return saved, nil
}
