package pricing

import (
	"context"
	"math"
)

// SeatFareTable is the local estimator used when no price service is
// configured: a base fare plus a rate per offered seat.
type SeatFareTable struct {
	baseFare    float64
	perSeatRate float64
	maxFare     float64
}

// NewSeatFareTable creates a fare table with default rates
func NewSeatFareTable() *SeatFareTable {
	return &SeatFareTable{
		baseFare:    8.0, // Base fare in currency units
		perSeatRate: 2.5,
		maxFare:     60.0,
	}
}

// NewSeatFareTableWithRates creates a fare table with custom rates. A
// non-positive maxFare disables the cap.
func NewSeatFareTableWithRates(baseFare, perSeatRate, maxFare float64) *SeatFareTable {
	return &SeatFareTable{
		baseFare:    baseFare,
		perSeatRate: perSeatRate,
		maxFare:     maxFare,
	}
}

// Estimate implements domain.PriceOracle. Route names are ignored.
func (t *SeatFareTable) Estimate(ctx context.Context, seats int, origin, destination string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if seats < 1 {
		seats = 1
	}
	fare := t.baseFare + float64(seats)*t.perSeatRate
	if t.maxFare > 0 && fare > t.maxFare {
		fare = t.maxFare
	}
	// cents
	return math.Round(fare*100) / 100, nil
}
