package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ride-share/internal/ride-service/domain"
	"ride-share/pkg/logger"

	"github.com/google/uuid"
)

// Options tunes RideService. Zero values take the defaults below.
type Options struct {
	MaxAttempts   int              // read-validate-write attempts per mutation
	DefaultPrice  float64          // used when the oracle has no estimate
	OracleTimeout time.Duration    // bound on one price estimate
	NotifyTimeout time.Duration    // bound on publishing one event
	Clock         func() time.Time // source of "now"
	NewID         func() string    // ride and reservation ids
}

const (
	DefaultMaxAttempts   = 5
	DefaultPrice         = 15.00
	DefaultOracleTimeout = 3 * time.Second
	DefaultNotifyTimeout = 2 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.DefaultPrice <= 0 {
		o.DefaultPrice = DefaultPrice
	}
	if o.OracleTimeout <= 0 {
		o.OracleTimeout = DefaultOracleTimeout
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = DefaultNotifyTimeout
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// RideService owns every ride and reservation mutation. The store is the
// only serialization point: each mutation reads a copy, validates and
// modifies it, and writes it back with a version check, retrying on a lost
// race.
type RideService struct {
	store    domain.RideStore
	oracle   domain.PriceOracle
	notifier domain.EventNotifier
	logger   logger.Logger
	opts     Options
}

// NewRideService creates the service. oracle and notifier may be nil.
func NewRideService(
	store domain.RideStore,
	oracle domain.PriceOracle,
	notifier domain.EventNotifier,
	logger logger.Logger,
	opts Options,
) *RideService {
	return &RideService{
		store:    store,
		oracle:   oracle,
		notifier: notifier,
		logger:   logger,
		opts:     opts.withDefaults(),
	}
}

func (s *RideService) log(ctx context.Context, fields logger.LogFields) logger.Logger {
	return logger.FromContext(ctx, s.logger).WithFields(fields)
}

func (s *RideService) now() time.Time {
	return s.opts.Clock()
}

// errConcurrentModification is returned once every attempt lost its race.
func errConcurrentModification() error {
	return domain.Conflictf("ride was modified concurrently, please retry")
}

// mutate applies fn to a fresh copy of the ride and saves it with a version
// check. fn may run more than once and must not have side effects outside
// the ride.
func (s *RideService) mutate(ctx context.Context, id string, fn func(ride *domain.Ride) error) (*domain.Ride, error) {
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ride %s: %w", id, err)
		}

		ride, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(ride); err != nil {
			return nil, err
		}

		saved, err := s.store.Save(ctx, ride)
		if errors.Is(err, domain.ErrVersionConflict) {
			s.log(ctx, logger.LogFields{"ride_id": id, "attempt": attempt}).
				Debug("ride_write_retry", "Ride changed since read, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		return saved, nil
	}

	s.log(ctx, logger.LogFields{"ride_id": id, "attempts": s.opts.MaxAttempts}).
		Warn("ride_write_contended", "Giving up after repeated version conflicts")
	return nil, errConcurrentModification()
}

// publish delivers event after commit. Failures are logged, never returned:
// the mutation has already happened.
func (s *RideService) publish(ctx context.Context, event domain.DomainEvent) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.NotifyTimeout)
	defer cancel()

	if err := s.notifier.Publish(ctx, event); err != nil {
		s.log(ctx, logger.LogFields{
			"ride_id":    event.AggregateID(),
			"event_type": event.EventType(),
		}).Error("publish_event_failed", err)
	}
}

func seatSnapshot(r *domain.Ride) domain.SeatSnapshot {
	return domain.SeatSnapshot{Available: r.AvailableSeats(), Reserved: r.ReservedSeats()}
}
