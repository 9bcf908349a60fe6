package service

import (
	"context"
	"errors"
	"fmt"

	"ride-share/internal/ride-service/domain"
	"ride-share/pkg/logger"
)

// DeleteRide removes a ride the requester drives, provided nobody booked it.
func (s *RideService) DeleteRide(ctx context.Context, requester domain.Identity, id string) error {
	log := s.log(ctx, logger.LogFields{"ride_id": id, "user_id": requester.ID})

	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ride %s: %w", id, err)
		}

		ride, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if !ride.IsOwnedBy(requester.ID) {
			return domain.Forbiddenf("only the driver can delete this ride")
		}
		if err := ride.EnsureDeletable(); err != nil {
			return err
		}

		err = s.store.Delete(ctx, id, ride.Version())
		if errors.Is(err, domain.ErrVersionConflict) {
			log.WithFields(logger.LogFields{"attempt": attempt}).Debug("ride_delete_retry", "Ride changed since read, retrying")
			continue
		}
		if err != nil {
			log.Error("delete_ride_failed", err)
			return err
		}

		log.Info("ride_deleted", "Ride deleted successfully")
		s.publish(ctx, domain.RideDeletedEvent{
			RideID:    id,
			UserID:    requester.ID,
			DeletedAt: s.now(),
		})
		return nil
	}
	return errConcurrentModification()
}
