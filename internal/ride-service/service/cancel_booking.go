package service

import (
	"context"

	"ride-share/internal/ride-service/domain"
	"ride-share/pkg/logger"
)

// CancelBooking gives back the seats of rider's reservation.
func (s *RideService) CancelBooking(ctx context.Context, rider domain.Identity, rideID, reservationID string) (*domain.Ride, error) {
	log := s.log(ctx, logger.LogFields{"ride_id": rideID, "reservation_id": reservationID, "user_id": rider.ID})

	var cancelled domain.Reservation
	saved, err := s.mutate(ctx, rideID, func(ride *domain.Ride) error {
		var err error
		cancelled, err = ride.CancelReservation(reservationID, rider.ID)
		return err
	})
	if err != nil {
		log.Debug("cancel_booking_rejected", domain.Message(err))
		return nil, err
	}

	log.WithFields(logger.LogFields{
		"seats":           cancelled.SeatsBooked,
		"available_seats": saved.AvailableSeats(),
	}).Info("booking_cancelled", "Reservation cancelled successfully")

	s.publish(ctx, domain.ReservationCancelledEvent{
		ReservationID: cancelled.ID,
		RideID:        saved.ID(),
		RiderID:       rider.ID,
		Seats:         seatSnapshot(saved),
		CancelledAt:   s.now(),
	})
	return saved, nil
}
