package domain

import (
	"strings"
	"time"
)

// Reservation is a rider's claim on seats of one ride. It has no identity
// outside the ride that owns it.
type Reservation struct {
	ID          string
	RiderID     string
	RiderName   string
	SeatsBooked int
	BookedAt    time.Time
}

// Ride is the aggregate root for seat inventory. availableSeats and
// reservedSeats always move together; their sum only changes through
// ApplyPatch on a ride without reservations.
type Ride struct {
	id             string
	origin         string
	destination    string
	driverID       string
	driverName     string
	departureTime  time.Time
	availableSeats int
	reservedSeats  int
	price          float64
	description    string
	createdAt      time.Time
	reservations   []Reservation
	version        int64
}

// NewRideParams holds the validated inputs of a new ride.
type NewRideParams struct {
	ID            string
	Driver        Identity
	Origin        string
	Destination   string
	DepartureTime time.Time
	Seats         Seats
	Price         float64
	Description   string
	Now           time.Time
}

// NewRide creates a ride with an empty reservation list.
func NewRide(p NewRideParams) (*Ride, error) {
	if p.ID == "" {
		return nil, InvalidArgumentf("ride id is required")
	}
	if p.Driver.ID == "" {
		return nil, InvalidArgumentf("driver id is required")
	}
	origin := strings.TrimSpace(p.Origin)
	if origin == "" {
		return nil, InvalidArgumentf("origin is required")
	}
	destination := strings.TrimSpace(p.Destination)
	if destination == "" {
		return nil, InvalidArgumentf("destination is required")
	}
	if err := validateDeparture(p.DepartureTime, p.Now); err != nil {
		return nil, err
	}
	if !p.Seats.Valid() {
		return nil, InvalidArgumentf("available seats must be between 1 and %d", MaxSeatsPerRide)
	}
	if err := validatePrice(p.Price); err != nil {
		return nil, err
	}

	return &Ride{
		id:             p.ID,
		origin:         origin,
		destination:    destination,
		driverID:       p.Driver.ID,
		driverName:     p.Driver.DisplayName("Driver"),
		departureTime:  p.DepartureTime,
		availableSeats: p.Seats.Int(),
		reservedSeats:  0,
		price:          p.Price,
		description:    p.Description,
		createdAt:      p.Now,
		reservations:   []Reservation{},
	}, nil
}

// ReconstructRide rebuilds a ride from persistence.
func ReconstructRide(
	id string,
	origin string,
	destination string,
	driverID string,
	driverName string,
	departureTime time.Time,
	availableSeats int,
	reservedSeats int,
	price float64,
	description string,
	createdAt time.Time,
	reservations []Reservation,
	version int64,
) *Ride {
	res := make([]Reservation, len(reservations))
	copy(res, reservations)
	return &Ride{
		id:             id,
		origin:         origin,
		destination:    destination,
		driverID:       driverID,
		driverName:     driverName,
		departureTime:  departureTime,
		availableSeats: availableSeats,
		reservedSeats:  reservedSeats,
		price:          price,
		description:    description,
		createdAt:      createdAt,
		reservations:   res,
		version:        version,
	}
}

func validateDeparture(t, now time.Time) error {
	if t.IsZero() {
		return InvalidArgumentf("departure time is required")
	}
	if !t.After(now) {
		return InvalidArgumentf("departure time must be in the future")
	}
	return nil
}

func validatePrice(p float64) error {
	if !(p > 0) {
		return InvalidArgumentf("price must be greater than zero")
	}
	return nil
}

// Business methods

// Book adds a reservation for rider. Checks run in a fixed order: capacity,
// self-booking, duplicate booking.
func (r *Ride) Book(reservationID string, rider Identity, seats Seats, now time.Time) (Reservation, error) {
	if !seats.Valid() {
		return Reservation{}, InvalidArgumentf("seat count must be between 1 and %d", MaxSeatsPerRide)
	}
	if seats.Int() > r.availableSeats {
		return Reservation{}, Conflictf("only %d place(s) available", r.availableSeats)
	}
	if rider.ID == r.driverID {
		return Reservation{}, Forbiddenf("you cannot book your own ride")
	}
	if existing, ok := r.ReservationByRider(rider.ID); ok {
		return Reservation{}, &BookingConflictError{Existing: existing, Ride: r.Clone()}
	}

	res := Reservation{
		ID:          reservationID,
		RiderID:     rider.ID,
		RiderName:   rider.DisplayName("Rider"),
		SeatsBooked: seats.Int(),
		BookedAt:    now,
	}
	r.reservations = append(r.reservations, res)
	r.availableSeats -= res.SeatsBooked
	r.reservedSeats += res.SeatsBooked
	return res, nil
}

// CancelReservation removes the reservation matching both ids and gives its
// seats back.
func (r *Ride) CancelReservation(reservationID, riderID string) (Reservation, error) {
	for i, res := range r.reservations {
		if res.ID != reservationID || res.RiderID != riderID {
			continue
		}
		r.reservations = append(r.reservations[:i:i], r.reservations[i+1:]...)
		r.availableSeats += res.SeatsBooked
		r.reservedSeats -= res.SeatsBooked
		return res, nil
	}
	return Reservation{}, NotFoundf("reservation %s not found", reservationID)
}

// ApplyPatch changes only the fields present in p.
func (r *Ride) ApplyPatch(p RidePatch, now time.Time) error {
	if r.HasReservations() && p.TouchesInventory() {
		return Conflictf("cannot change the number of seats or the departure time of a ride with reservations")
	}

	next := *r
	if p.Origin != nil {
		v := strings.TrimSpace(*p.Origin)
		if v == "" {
			return InvalidArgumentf("origin must not be empty")
		}
		next.origin = v
	}
	if p.Destination != nil {
		v := strings.TrimSpace(*p.Destination)
		if v == "" {
			return InvalidArgumentf("destination must not be empty")
		}
		next.destination = v
	}
	if p.DepartureTime != nil {
		if err := validateDeparture(*p.DepartureTime, now); err != nil {
			return err
		}
		next.departureTime = *p.DepartureTime
	}
	if p.AvailableSeats != nil {
		if !p.AvailableSeats.Valid() {
			return InvalidArgumentf("available seats must be between 1 and %d", MaxSeatsPerRide)
		}
		// no reservations here, so reservedSeats is zero
		next.availableSeats = p.AvailableSeats.Int()
	}
	if p.Price != nil {
		if err := validatePrice(*p.Price); err != nil {
			return err
		}
		next.price = *p.Price
	}
	if p.Description != nil {
		next.description = *p.Description
	}

	*r = next
	return nil
}

// EnsureDeletable reports whether the ride may be removed.
func (r *Ride) EnsureDeletable() error {
	if r.HasReservations() {
		return Conflictf("cannot delete a ride with reservations")
	}
	return nil
}

// Query methods

func (r *Ride) HasReservations() bool { return len(r.reservations) > 0 }

func (r *Ride) IsOwnedBy(userID string) bool { return r.driverID == userID }

// ReservationByRider returns the rider's reservation on this ride, if any.
func (r *Ride) ReservationByRider(riderID string) (Reservation, bool) {
	for _, res := range r.reservations {
		if res.RiderID == riderID {
			return res, true
		}
	}
	return Reservation{}, false
}

// TotalSeats is the ride's capacity.
func (r *Ride) TotalSeats() int { return r.availableSeats + r.reservedSeats }

// Clone returns a deep copy.
func (r *Ride) Clone() *Ride {
	c := *r
	c.reservations = make([]Reservation, len(r.reservations))
	copy(c.reservations, r.reservations)
	return &c
}

// WithVersion returns a deep copy stamped with version. Stores use it after
// a successful write.
func (r *Ride) WithVersion(version int64) *Ride {
	c := r.Clone()
	c.version = version
	return c
}

// Getters

func (r *Ride) ID() string               { return r.id }
func (r *Ride) Origin() string           { return r.origin }
func (r *Ride) Destination() string      { return r.destination }
func (r *Ride) DriverID() string         { return r.driverID }
func (r *Ride) DriverName() string       { return r.driverName }
func (r *Ride) DepartureTime() time.Time { return r.departureTime }
func (r *Ride) AvailableSeats() int      { return r.availableSeats }
func (r *Ride) ReservedSeats() int       { return r.reservedSeats }
func (r *Ride) Price() float64           { return r.price }
func (r *Ride) Description() string      { return r.description }
func (r *Ride) CreatedAt() time.Time     { return r.createdAt }
func (r *Ride) Version() int64           { return r.version }

// Reservations returns a copy of the reservation list in booking order.
func (r *Ride) Reservations() []Reservation {
	out := make([]Reservation, len(r.reservations))
	copy(out, r.reservations)
	return out
}

// RidePatch lists the fields an update may change. Nil means untouched.
type RidePatch struct {
	Origin         *string
	Destination    *string
	DepartureTime  *time.Time
	AvailableSeats *Seats
	Price          *float64
	Description    *string
}

// TouchesInventory reports whether the patch changes seats or time.
func (p RidePatch) TouchesInventory() bool {
	return p.AvailableSeats != nil || p.DepartureTime != nil
}

func (p RidePatch) IsEmpty() bool {
	return p.Origin == nil && p.Destination == nil && p.DepartureTime == nil &&
		p.AvailableSeats == nil && p.Price == nil && p.Description == nil
}
