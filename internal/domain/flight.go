package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type FareClass string

const (
	FareClassEconomy  FareClass = "economy"
	FareClassBusiness FareClass = "business"
	FareClassFirst    FareClass = "first"
)

// FareTable maps a fare class to its per-seat rate.
type FareTable map[FareClass]decimal.Decimal

func (t FareTable) Rate(class FareClass) (decimal.Decimal, bool) {
	rate, ok := t[class]
	return rate, ok
}

func (t FareTable) Validate() error {
	if len(t) == 0 {
		return ErrInvalidFlightData
	}
	for _, rate := range t {
		if rate.IsNegative() {
			return ErrInvalidFlightData
		}
	}
	return nil
}

// Flight is the inventory row for one flight leg. BookedSeats is written
// only through the inventory store's ReserveSeats.
type Flight struct {
	ID          uuid.UUID
	Capacity    int
	BookedSeats int
	Fares       FareTable
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (f *Flight) AvailableSeats() int {
	return f.Capacity - f.BookedSeats
}
