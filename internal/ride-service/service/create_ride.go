package service

import (
	"context"
	"strings"
	"time"

	"ride-share/internal/ride-service/domain"
	"ride-share/pkg/logger"
)

// CreateRideInput holds a driver's offer. A nil Price asks the oracle.
type CreateRideInput struct {
	Origin        string
	Destination   string
	DepartureTime time.Time
	Seats         domain.Seats
	Price         *float64
	Description   string
}

// CreateRide publishes a new ride owned by driver.
func (s *RideService) CreateRide(ctx context.Context, driver domain.Identity, in CreateRideInput) (*domain.Ride, error) {
	log := s.log(ctx, logger.LogFields{"user_id": driver.ID})

	if driver.Role != domain.RoleDriver {
		return nil, domain.Forbiddenf("only drivers can publish rides")
	}
	if in.Price != nil && !(*in.Price > 0) {
		return nil, domain.InvalidArgumentf("price must be greater than zero")
	}

	// validate before paying for an estimate
	probe := domain.NewRideParams{
		ID:            "pending",
		Driver:        driver,
		Origin:        in.Origin,
		Destination:   in.Destination,
		DepartureTime: in.DepartureTime,
		Seats:         in.Seats,
		Price:         DefaultPrice,
		Description:   in.Description,
		Now:           s.now(),
	}
	if _, err := domain.NewRide(probe); err != nil {
		log.Debug("create_ride_rejected", domain.Message(err))
		return nil, err
	}

	var price float64
	if in.Price != nil {
		price = *in.Price
	} else {
		price = s.estimatePrice(ctx, in.Seats.Int(), strings.TrimSpace(in.Origin), strings.TrimSpace(in.Destination))
	}

	params := probe
	params.ID = s.opts.NewID()
	params.Price = price
	params.Now = s.now()
	ride, err := domain.NewRide(params)
	if err != nil {
		return nil, err
	}

	saved, err := s.store.Save(ctx, ride)
	if err != nil {
		log.Error("create_ride_failed", err)
		return nil, err
	}

	log.WithFields(logger.LogFields{
		"ride_id": saved.ID(),
		"seats":   saved.AvailableSeats(),
		"price":   saved.Price(),
	}).Info("ride_created", "Ride created successfully")

	s.publish(ctx, domain.RideCreatedEvent{
		Ride:      saved,
		UserID:    driver.ID,
		CreatedAt: saved.CreatedAt(),
	})
	return saved, nil
}

// estimatePrice asks the oracle, falling back to the default price on any
// failure or non-positive estimate.
func (s *RideService) estimatePrice(ctx context.Context, seats int, origin, destination string) float64 {
	if s.oracle == nil {
		return s.opts.DefaultPrice
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.OracleTimeout)
	defer cancel()

	log := s.log(ctx, logger.LogFields{"origin": origin, "destination": destination, "seats": seats})
	price, err := s.oracle.Estimate(ctx, seats, origin, destination)
	if err != nil {
		log.Warn("price_estimate_failed", err.Error())
		return s.opts.DefaultPrice
	}
	if !(price > 0) {
		log.Warn("price_estimate_invalid", "Estimator returned a non-positive price")
		return s.opts.DefaultPrice
	}
	return price
}
