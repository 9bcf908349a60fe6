package http

import (
	"encoding/json"
	"strings"
	"time"

	"ride-share/internal/ride-service/domain"
)

// CreateRideRequest represents the HTTP request for publishing a ride
type CreateRideRequest struct {
	Origin         string      `json:"origin"`
	Destination    string      `json:"destination"`
	DepartureTime  string      `json:"departure_time"`
	AvailableSeats json.Number `json:"available_seats"`
	Price          *float64    `json:"price,omitempty"`
	Description    string      `json:"description,omitempty"`
}

// UpdateRideRequest lists the editable fields; absent fields are untouched.
type UpdateRideRequest struct {
	Origin         *string      `json:"origin,omitempty"`
	Destination    *string      `json:"destination,omitempty"`
	DepartureTime  *string      `json:"departure_time,omitempty"`
	AvailableSeats *json.Number `json:"available_seats,omitempty"`
	Price          *float64     `json:"price,omitempty"`
	Description    *string      `json:"description,omitempty"`
}

// BookRideRequest represents the HTTP request for reserving seats
type BookRideRequest struct {
	Seats json.Number `json:"seats"`
}

type ReservationResponse struct {
	ID          string `json:"id"`
	RiderID     string `json:"rider_id"`
	RiderName   string `json:"rider_name"`
	SeatsBooked int    `json:"seats_booked"`
	BookedAt    string `json:"booked_at"`
}

type RideResponse struct {
	ID             string                `json:"id"`
	Origin         string                `json:"origin"`
	Destination    string                `json:"destination"`
	DriverID       string                `json:"driver_id"`
	DriverName     string                `json:"driver_name"`
	DepartureTime  string                `json:"departure_time"`
	AvailableSeats int                   `json:"available_seats"`
	ReservedSeats  int                   `json:"reserved_seats"`
	Price          float64               `json:"price"`
	Description    string                `json:"description"`
	CreatedAt      string                `json:"created_at"`
	Reservations   []ReservationResponse `json:"reservations"`
}

type BookingResponse struct {
	Reservation ReservationResponse `json:"reservation"`
	Ride        RideResponse        `json:"ride"`
}

func toReservationResponse(r domain.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:          r.ID,
		RiderID:     r.RiderID,
		RiderName:   r.RiderName,
		SeatsBooked: r.SeatsBooked,
		BookedAt:    r.BookedAt.Format(time.RFC3339),
	}
}

func toRideResponse(r *domain.Ride) RideResponse {
	res := r.Reservations()
	out := make([]ReservationResponse, len(res))
	for i, x := range res {
		out[i] = toReservationResponse(x)
	}
	return RideResponse{
		ID:             r.ID(),
		Origin:         r.Origin(),
		Destination:    r.Destination(),
		DriverID:       r.DriverID(),
		DriverName:     r.DriverName(),
		DepartureTime:  r.DepartureTime().Format(time.RFC3339),
		AvailableSeats: r.AvailableSeats(),
		ReservedSeats:  r.ReservedSeats(),
		Price:          r.Price(),
		Description:    r.Description(),
		CreatedAt:      r.CreatedAt().Format(time.RFC3339),
		Reservations:   out,
	}
}

func toRideResponses(rides []*domain.Ride) []RideResponse {
	out := make([]RideResponse, len(rides))
	for i, r := range rides {
		out[i] = toRideResponse(r)
	}
	return out
}

func parseDepartureTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, domain.InvalidArgumentf("departure_time is required")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domain.InvalidArgumentf("departure_time must be an RFC 3339 timestamp")
	}
	return t, nil
}

func (req UpdateRideRequest) toPatch() (domain.RidePatch, error) {
	p := domain.RidePatch{
		Origin:      req.Origin,
		Destination: req.Destination,
		Price:       req.Price,
		Description: req.Description,
	}
	if req.DepartureTime != nil {
		t, err := parseDepartureTime(*req.DepartureTime)
		if err != nil {
			return domain.RidePatch{}, err
		}
		p.DepartureTime = &t
	}
	if req.AvailableSeats != nil {
		s, err := domain.ParseSeats(req.AvailableSeats.String())
		if err != nil {
			return domain.RidePatch{}, err
		}
		p.AvailableSeats = &s
	}
	return p, nil
}
