package domain

import (
	"strings"
	"time"
)

// Filter selects rides. Zero-valued fields impose no constraint.
type Filter struct {
	Origin         string     // substring, case-insensitive
	Destination    string     // substring, case-insensitive
	Date           *time.Time // same calendar day, in Date's location
	MinSeats       *int       // availableSeats >= MinSeats
	MaxPrice       *float64   // price <= MaxPrice
	DepartingAfter *time.Time // departureTime strictly after
	DriverID       string     // exact
	RiderID        string     // ride holds a reservation by this rider
}

// DayBounds returns the half-open interval [start, end) covering Date.
func (f Filter) DayBounds() (start, end time.Time, ok bool) {
	if f.Date == nil {
		return time.Time{}, time.Time{}, false
	}
	d := *f.Date
	start = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	return start, start.AddDate(0, 0, 1), true
}

// Matches is the reference predicate every RideStore must agree with.
func (f Filter) Matches(r *Ride) bool {
	if f.Origin != "" && !containsFold(r.origin, f.Origin) {
		return false
	}
	if f.Destination != "" && !containsFold(r.destination, f.Destination) {
		return false
	}
	if start, end, ok := f.DayBounds(); ok {
		if r.departureTime.Before(start) || !r.departureTime.Before(end) {
			return false
		}
	}
	if f.MinSeats != nil && r.availableSeats < *f.MinSeats {
		return false
	}
	if f.MaxPrice != nil && r.price > *f.MaxPrice {
		return false
	}
	if f.DepartingAfter != nil && !r.departureTime.After(*f.DepartingAfter) {
		return false
	}
	if f.DriverID != "" && r.driverID != f.DriverID {
		return false
	}
	if f.RiderID != "" {
		if _, ok := r.ReservationByRider(f.RiderID); !ok {
			return false
		}
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
