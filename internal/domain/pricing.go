package domain

import "github.com/shopspring/decimal"

// ComputePrice returns passengerCount times the flight's per-seat rate
// for the fare class. Pure, no I/O.
func ComputePrice(flight *Flight, passengerCount int, class FareClass) (decimal.Decimal, error) {
	rate, ok := flight.Fares.Rate(class)
	if !ok {
		return decimal.Decimal{}, ErrUnknownFareClass
	}
	return rate.Mul(decimal.NewFromInt(int64(passengerCount))), nil
}
