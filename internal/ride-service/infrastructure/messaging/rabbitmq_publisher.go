package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ride-share/internal/ride-service/domain"
	"ride-share/pkg/logger"
	"ride-share/pkg/rabbitmq"

	"github.com/google/uuid"
)

// Publisher is the part of rabbitmq.Connection the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, m rabbitmq.Message) error
}

// RabbitMQNotifier implements domain.EventNotifier on the trip and
// reservation exchanges.
type RabbitMQNotifier struct {
	rabbit Publisher
	logger logger.Logger
}

// NewRabbitMQNotifier creates a new RabbitMQ event notifier
func NewRabbitMQNotifier(rabbit Publisher, logger logger.Logger) *RabbitMQNotifier {
	return &RabbitMQNotifier{
		rabbit: rabbit,
		logger: logger,
	}
}

// Publish publishes a domain event to RabbitMQ
func (p *RabbitMQNotifier) Publish(ctx context.Context, event domain.DomainEvent) error {
	message, exchange, routingKey := eventToMessage(event)
	if message == nil {
		return fmt.Errorf("unsupported event type: %s", event.EventType())
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := rabbitmq.Message{
		ID:   uuid.NewString(),
		Body: body,
		Headers: map[string]interface{}{
			"partition_key": event.PartitionKey(),
			"event_type":    event.EventType(),
		},
	}
	if err := p.rabbit.Publish(ctx, exchange, routingKey, msg); err != nil {
		return fmt.Errorf("publish to rabbitmq: %w", err)
	}

	p.logger.WithFields(logger.LogFields{
		"ride_id":     event.AggregateID(),
		"event_id":    msg.ID,
		"event_type":  event.EventType(),
		"routing_key": routingKey,
	}).Debug("event_published", "Domain event published to RabbitMQ")

	return nil
}

// eventToMessage converts a domain event to its wire payload, exchange and
// routing key.
func eventToMessage(event domain.DomainEvent) (map[string]interface{}, string, string) {
	var (
		payload  map[string]interface{}
		exchange string
		topic    string
	)

	switch e := event.(type) {
	case domain.RideCreatedEvent:
		payload = map[string]interface{}{
			"ride":   rideToMap(e.Ride),
			"userId": e.UserID,
		}
		exchange, topic = rabbitmq.ExchangeTrips, "trip"

	case domain.RideUpdatedEvent:
		payload = map[string]interface{}{
			"rideId": e.RideID,
			"patch":  patchToMap(e.Patch),
			"userId": e.UserID,
		}
		exchange, topic = rabbitmq.ExchangeTrips, "trip"

	case domain.RideDeletedEvent:
		payload = map[string]interface{}{
			"rideId": e.RideID,
			"userId": e.UserID,
		}
		exchange, topic = rabbitmq.ExchangeTrips, "trip"

	case domain.ReservationCreatedEvent:
		payload = map[string]interface{}{
			"reservation": reservationToMap(e.Reservation),
			"rideId":      e.RideID,
			"riderId":     e.RiderID,
		}
		exchange, topic = rabbitmq.ExchangeReservations, "reservation"

	case domain.ReservationCancelledEvent:
		payload = map[string]interface{}{
			"reservationId": e.ReservationID,
			"rideId":        e.RideID,
			"riderId":       e.RiderID,
		}
		exchange, topic = rabbitmq.ExchangeReservations, "reservation"

	default:
		return nil, "", ""
	}

	payload["eventType"] = event.EventType()
	payload["timestamp"] = event.OccurredAt().UTC().Format(time.RFC3339Nano)

	// RIDE_CREATED -> trip.created.<ride>, RESERVATION_CANCELLED -> reservation.cancelled.<ride>
	verb := strings.ToLower(event.EventType()[strings.LastIndex(event.EventType(), "_")+1:])
	return payload, exchange, fmt.Sprintf("%s.%s.%s", topic, verb, event.AggregateID())
}

func rideToMap(r *domain.Ride) map[string]interface{} {
	res := r.Reservations()
	reservations := make([]map[string]interface{}, len(res))
	for i, x := range res {
		reservations[i] = reservationToMap(x)
	}
	return map[string]interface{}{
		"id":             r.ID(),
		"origin":         r.Origin(),
		"destination":    r.Destination(),
		"driverId":       r.DriverID(),
		"driverName":     r.DriverName(),
		"departureTime":  r.DepartureTime().UTC().Format(time.RFC3339),
		"availableSeats": r.AvailableSeats(),
		"reservedSeats":  r.ReservedSeats(),
		"price":          r.Price(),
		"description":    r.Description(),
		"createdAt":      r.CreatedAt().UTC().Format(time.RFC3339),
		"reservations":   reservations,
	}
}

func reservationToMap(r domain.Reservation) map[string]interface{} {
	return map[string]interface{}{
		"id":          r.ID,
		"riderId":     r.RiderID,
		"riderName":   r.RiderName,
		"seatsBooked": r.SeatsBooked,
		"bookedAt":    r.BookedAt.UTC().Format(time.RFC3339),
	}
}

// patchToMap keeps only the fields the patch set.
func patchToMap(p domain.RidePatch) map[string]interface{} {
	m := map[string]interface{}{}
	if p.Origin != nil {
		m["origin"] = *p.Origin
	}
	if p.Destination != nil {
		m["destination"] = *p.Destination
	}
	if p.DepartureTime != nil {
		m["departureTime"] = p.DepartureTime.UTC().Format(time.RFC3339)
	}
	if p.AvailableSeats != nil {
		m["availableSeats"] = p.AvailableSeats.Int()
	}
	if p.Price != nil {
		m["price"] = *p.Price
	}
	if p.Description != nil {
		m["description"] = *p.Description
	}
	return m
}
