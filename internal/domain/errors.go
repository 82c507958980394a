package domain

import "errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrBusy                 = errors.New("busy, retry later")

	ErrFlightNotFound      = errors.New("flight not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrPassengerNotFound   = errors.New("passenger not found")

	ErrInvalidPassengerData = errors.New("invalid passenger data")
	ErrUnknownFareClass     = errors.New("unknown fare class")
	ErrInvalidFlightData    = errors.New("invalid flight data")

	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrMinimumPassenger     = errors.New("reservation must keep at least one passenger")
	ErrReservationCancelled = errors.New("reservation is cancelled")

	ErrForbidden = errors.New("forbidden")
)
