package messaging

import (
	"context"

	"ride-share/internal/ride-service/domain"
	"ride-share/pkg/logger"
)

// Broadcaster delivers a message to every subscriber of a topic.
type Broadcaster interface {
	Broadcast(topic string, message interface{}) int
}

// SeatUpdate is the message pushed to seat feed subscribers.
type SeatUpdate struct {
	Type           string `json:"type"`
	RideID         string `json:"ride_id"`
	AvailableSeats int    `json:"available_seats"`
	ReservedSeats  int    `json:"reserved_seats"`
}

// Snapshot describes the current inventory of r.
func Snapshot(r *domain.Ride) SeatUpdate {
	return SeatUpdate{
		Type:           "SNAPSHOT",
		RideID:         r.ID(),
		AvailableSeats: r.AvailableSeats(),
		ReservedSeats:  r.ReservedSeats(),
	}
}

// SeatFeedNotifier pushes inventory changes to WebSocket subscribers of the
// ride. Subscribers of a deleted ride receive zero seats.
type SeatFeedNotifier struct {
	hub    Broadcaster
	logger logger.Logger
}

func NewSeatFeedNotifier(hub Broadcaster, logger logger.Logger) *SeatFeedNotifier {
	return &SeatFeedNotifier{hub: hub, logger: logger}
}

func (n *SeatFeedNotifier) Publish(ctx context.Context, event domain.DomainEvent) error {
	update, ok := seatUpdateFor(event)
	if !ok {
		return nil
	}
	sent := n.hub.Broadcast(update.RideID, update)
	if sent > 0 {
		n.logger.WithFields(logger.LogFields{
			"ride_id":     update.RideID,
			"event_type":  update.Type,
			"subscribers": sent,
		}).Debug("seat_feed_pushed", "Seat update delivered")
	}
	return nil
}

func seatUpdateFor(event domain.DomainEvent) (SeatUpdate, bool) {
	u := SeatUpdate{Type: event.EventType(), RideID: event.AggregateID()}
	switch e := event.(type) {
	case domain.RideCreatedEvent:
		u.AvailableSeats, u.ReservedSeats = e.Ride.AvailableSeats(), e.Ride.ReservedSeats()
	case domain.RideUpdatedEvent:
		u.AvailableSeats, u.ReservedSeats = e.Seats.Available, e.Seats.Reserved
	case domain.RideDeletedEvent:
	case domain.ReservationCreatedEvent:
		u.AvailableSeats, u.ReservedSeats = e.Seats.Available, e.Seats.Reserved
	case domain.ReservationCancelledEvent:
		u.AvailableSeats, u.ReservedSeats = e.Seats.Available, e.Seats.Reserved
	default:
		return SeatUpdate{}, false
	}
	return u, true
}
