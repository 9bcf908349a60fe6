package consumer

import (
	"encoding/json"
	"errors"
	"fmt"

	"ride-share/pkg/logger"
	"ride-share/pkg/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Subscriber is the part of rabbitmq.Connection the audit log needs.
type Subscriber interface {
	Consume(queueName string, handler func(amqp.Delivery)) error
}

var errUnknownEvent = errors.New("unknown event type")

// AuditConsumer writes one structured log line per trip or reservation event.
type AuditConsumer struct {
	rabbit Subscriber
	log    logger.Logger
}

func New(rabbit Subscriber, log logger.Logger) *AuditConsumer {
	return &AuditConsumer{
		rabbit: rabbit,
		log:    log,
	}
}

type rideSummary struct {
	ID             string `json:"id"`
	Origin         string `json:"origin"`
	Destination    string `json:"destination"`
	DriverID       string `json:"driverId"`
	AvailableSeats int    `json:"availableSeats"`
}

type reservationSummary struct {
	ID          string `json:"id"`
	SeatsBooked int    `json:"seatsBooked"`
}

// eventEnvelope is the union of every event payload the ride service emits.
type eventEnvelope struct {
	EventType     string                 `json:"eventType"`
	Timestamp     string                 `json:"timestamp"`
	Ride          *rideSummary           `json:"ride,omitempty"`
	RideID        string                 `json:"rideId,omitempty"`
	UserID        string                 `json:"userId,omitempty"`
	Patch         map[string]interface{} `json:"patch,omitempty"`
	Reservation   *reservationSummary    `json:"reservation,omitempty"`
	ReservationID string                 `json:"reservationId,omitempty"`
	RiderID       string                 `json:"riderId,omitempty"`
}

// StartConsuming subscribes to both audit queues.
func (c *AuditConsumer) StartConsuming() error {
	for _, queue := range []string{rabbitmq.QueueAuditTrips, rabbitmq.QueueAuditReservations} {
		c.log.WithFields(logger.LogFields{"queue": queue}).Info("consumer_starting", "Starting audit consumer")

		if err := c.rabbit.Consume(queue, func(msg amqp.Delivery) {
			c.handleDelivery(queue, msg)
		}); err != nil {
			return fmt.Errorf("consume %s: %w", queue, err)
		}
	}
	c.log.Info("consumers_started", "All audit consumers started")
	return nil
}

// handleDelivery acks everything it could read, unknown types included.
// Bodies that are not JSON are rejected without requeue.
func (c *AuditConsumer) handleDelivery(queue string, msg amqp.Delivery) {
	log := c.log.WithFields(logger.LogFields{
		"queue":       queue,
		"message_id":  msg.MessageId,
		"routing_key": msg.RoutingKey,
	})

	err := c.process(queue, msg.Body)
	switch {
	case err == nil:
	case errors.Is(err, errUnknownEvent):
		log.Warn("audit_unknown_event", err.Error())
	default:
		log.WithFields(logger.LogFields{"body": string(msg.Body)}).Error("audit_malformed_event", err)
		if nackErr := msg.Nack(false, false); nackErr != nil {
			log.Error("audit_nack_failed", nackErr)
		}
		return
	}

	if ackErr := msg.Ack(false); ackErr != nil {
		log.Error("audit_ack_failed", ackErr)
	}
}

func (c *AuditConsumer) process(queue string, body []byte) error {
	var e eventEnvelope
	if err := json.Unmarshal(body, &e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if e.EventType == "" {
		return errors.New("event has no eventType")
	}

	fields := logger.LogFields{
		"event_type":  e.EventType,
		"occurred_at": e.Timestamp,
	}

	switch queue {
	case rabbitmq.QueueAuditTrips:
		return c.logTripEvent(e, fields)
	case rabbitmq.QueueAuditReservations:
		return c.logReservationEvent(e, fields)
	}
	return fmt.Errorf("%w: %s from queue %s", errUnknownEvent, e.EventType, queue)
}

func (c *AuditConsumer) logTripEvent(e eventEnvelope, fields logger.LogFields) error {
	fields["user_id"] = e.UserID

	switch e.EventType {
	case "RIDE_CREATED":
		if e.Ride == nil {
			return errors.New("RIDE_CREATED without ride")
		}
		fields["ride_id"] = e.Ride.ID
		fields["route"] = e.Ride.Origin + " -> " + e.Ride.Destination
		fields["available_seats"] = e.Ride.AvailableSeats
		c.log.WithFields(fields).Info("trip_created", fmt.Sprintf("Ride %s created by %s", e.Ride.ID, e.UserID))

	case "RIDE_UPDATED":
		fields["ride_id"] = e.RideID
		fields["changes"] = e.Patch
		c.log.WithFields(fields).Info("trip_updated", fmt.Sprintf("Ride %s updated by %s", e.RideID, e.UserID))

	case "RIDE_DELETED":
		fields["ride_id"] = e.RideID
		c.log.WithFields(fields).Info("trip_deleted", fmt.Sprintf("Ride %s deleted by %s", e.RideID, e.UserID))

	default:
		return fmt.Errorf("%w: trip event %s", errUnknownEvent, e.EventType)
	}
	return nil
}

func (c *AuditConsumer) logReservationEvent(e eventEnvelope, fields logger.LogFields) error {
	fields["ride_id"] = e.RideID
	fields["rider_id"] = e.RiderID

	switch e.EventType {
	case "RESERVATION_CREATED":
		if e.Reservation == nil {
			return errors.New("RESERVATION_CREATED without reservation")
		}
		fields["reservation_id"] = e.Reservation.ID
		fields["seats"] = e.Reservation.SeatsBooked
		c.log.WithFields(fields).Info("reservation_created",
			fmt.Sprintf("Reservation %s: %d seat(s) on ride %s for %s", e.Reservation.ID, e.Reservation.SeatsBooked, e.RideID, e.RiderID))

	case "RESERVATION_CANCELLED":
		fields["reservation_id"] = e.ReservationID
		c.log.WithFields(fields).Info("reservation_cancelled",
			fmt.Sprintf("Reservation %s on ride %s cancelled by %s", e.ReservationID, e.RideID, e.RiderID))

	default:
		return fmt.Errorf("%w: reservation event %s", errUnknownEvent, e.EventType)
	}
	return nil
}
