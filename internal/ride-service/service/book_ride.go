package service

import (
	"context"

	"ride-share/internal/ride-service/domain"
	"ride-share/pkg/logger"
)

// Booking is the result of a successful reservation.
type Booking struct {
	Reservation domain.Reservation
	Ride        *domain.Ride
}

// BookRide reserves seats on a ride for rider.
func (s *RideService) BookRide(ctx context.Context, rider domain.Identity, rideID string, seats domain.Seats) (*Booking, error) {
	log := s.log(ctx, logger.LogFields{"ride_id": rideID, "user_id": rider.ID, "seats": seats.Int()})

	reservationID := s.opts.NewID()
	var res domain.Reservation
	saved, err := s.mutate(ctx, rideID, func(ride *domain.Ride) error {
		var err error
		res, err = ride.Book(reservationID, rider, seats, s.now())
		return err
	})
	if err != nil {
		log.Debug("book_ride_rejected", domain.Message(err))
		return nil, err
	}

	log.WithFields(logger.LogFields{
		"reservation_id":  res.ID,
		"available_seats": saved.AvailableSeats(),
	}).Info("ride_booked", "Reservation created successfully")

	s.publish(ctx, domain.ReservationCreatedEvent{
		Reservation: res,
		RideID:      saved.ID(),
		RiderID:     rider.ID,
		Seats:       seatSnapshot(saved),
	})
	return &Booking{Reservation: res, Ride: saved}, nil
}
