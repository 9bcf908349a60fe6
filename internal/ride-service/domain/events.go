package domain

import "time"

// Event type names as they appear on the audit pipeline.
const (
	EventRideCreated          = "RIDE_CREATED"
	EventRideUpdated          = "RIDE_UPDATED"
	EventRideDeleted          = "RIDE_DELETED"
	EventReservationCreated   = "RESERVATION_CREATED"
	EventReservationCancelled = "RESERVATION_CANCELLED"
)

// DomainEvent is published after a mutation commits.
type DomainEvent interface {
	EventType() string
	// PartitionKey keeps events of one entity ordered on the bus.
	PartitionKey() string
	// AggregateID is the id of the ride the event concerns.
	AggregateID() string
	OccurredAt() time.Time
}

// SeatSnapshot is the inventory right after the mutation committed.
type SeatSnapshot struct {
	Available int
	Reserved  int
}

// RideCreatedEvent is raised when a driver offers a new ride
type RideCreatedEvent struct {
	Ride      *Ride
	UserID    string
	CreatedAt time.Time
}

func (e RideCreatedEvent) EventType() string     { return EventRideCreated }
func (e RideCreatedEvent) PartitionKey() string  { return e.Ride.ID() }
func (e RideCreatedEvent) AggregateID() string   { return e.Ride.ID() }
func (e RideCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// RideUpdatedEvent is raised when the owner edits a ride
type RideUpdatedEvent struct {
	RideID    string
	Patch     RidePatch
	UserID    string
	Seats     SeatSnapshot
	UpdatedAt time.Time
}

func (e RideUpdatedEvent) EventType() string     { return EventRideUpdated }
func (e RideUpdatedEvent) PartitionKey() string  { return e.RideID }
func (e RideUpdatedEvent) AggregateID() string   { return e.RideID }
func (e RideUpdatedEvent) OccurredAt() time.Time { return e.UpdatedAt }

// RideDeletedEvent is raised when the owner removes a ride
type RideDeletedEvent struct {
	RideID    string
	UserID    string
	DeletedAt time.Time
}

func (e RideDeletedEvent) EventType() string     { return EventRideDeleted }
func (e RideDeletedEvent) PartitionKey() string  { return e.RideID }
func (e RideDeletedEvent) AggregateID() string   { return e.RideID }
func (e RideDeletedEvent) OccurredAt() time.Time { return e.DeletedAt }

// ReservationCreatedEvent is raised when a rider books seats
type ReservationCreatedEvent struct {
	Reservation Reservation
	RideID      string
	RiderID     string
	Seats       SeatSnapshot
}

func (e ReservationCreatedEvent) EventType() string     { return EventReservationCreated }
func (e ReservationCreatedEvent) PartitionKey() string  { return e.Reservation.ID }
func (e ReservationCreatedEvent) AggregateID() string   { return e.RideID }
func (e ReservationCreatedEvent) OccurredAt() time.Time { return e.Reservation.BookedAt }

// ReservationCancelledEvent is raised when a rider gives seats back
type ReservationCancelledEvent struct {
	ReservationID string
	RideID        string
	RiderID       string
	Seats         SeatSnapshot
	CancelledAt   time.Time
}

func (e ReservationCancelledEvent) EventType() string     { return EventReservationCancelled }
func (e ReservationCancelledEvent) PartitionKey() string  { return e.ReservationID }
func (e ReservationCancelledEvent) AggregateID() string   { return e.RideID }
func (e ReservationCancelledEvent) OccurredAt() time.Time { return e.CancelledAt }
