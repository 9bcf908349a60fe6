package domain

import (
	"math"
	"strconv"
	"strings"
)

// MaxSeatsPerRide bounds any seat count accepted from a caller.
const MaxSeatsPerRide = 50

// Seats is a validated, positive seat count. Build it with NewSeats or
// ParseSeats; the zero value is not a valid count.
type Seats int

func NewSeats(n int) (Seats, error) {
	if n < 1 {
		return 0, InvalidArgumentf("seat count must be a positive integer, got %d", n)
	}
	if n > MaxSeatsPerRide {
		return 0, InvalidArgumentf("seat count must not exceed %d, got %d", MaxSeatsPerRide, n)
	}
	return Seats(n), nil
}

// ParseSeats accepts a decimal representation of a whole number ("2",
// "2.0"). Fractions are rejected rather than rounded.
func ParseSeats(raw string) (Seats, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, InvalidArgumentf("seat count is required")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, InvalidArgumentf("seat count %q is not a number", raw)
	}
	if f != math.Trunc(f) {
		return 0, InvalidArgumentf("seat count must be a whole number, got %s", raw)
	}
	if f < 1 || f > MaxSeatsPerRide {
		return 0, InvalidArgumentf("seat count must be between 1 and %d, got %s", MaxSeatsPerRide, raw)
	}
	return Seats(int(f)), nil
}

func (s Seats) Int() int { return int(s) }

func (s Seats) Valid() bool { return s >= 1 && s <= MaxSeatsPerRide }
