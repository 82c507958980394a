package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/flight-reservations/internal/domain"
)

// InventoryTx is the flight inventory store inside a transaction.
// ReserveSeats is the only path that writes booked seat counts.
type InventoryTx interface {
	Flight(ctx context.Context, id uuid.UUID) (*domain.Flight, error)
	InsertFlight(ctx context.Context, flight *domain.Flight) error
	// ReserveSeats adjusts booked seats by delta (negative releases) iff
	// the result stays within [0, capacity]; otherwise it returns
	// domain.ErrInsufficientCapacity without mutating anything.
	ReserveSeats(ctx context.Context, flightID uuid.UUID, delta int) error
	UpdateFares(ctx context.Context, flightID uuid.UUID, fares domain.FareTable) error
}

// ReservationTx is the reservation store inside a transaction. Insert
// and Update are the only mutation entry points and are reachable only
// from inside Store.Atomically.
type ReservationTx interface {
	Reservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	InsertReservation(ctx context.Context, r *domain.Reservation) error
	UpdateReservation(ctx context.Context, r *domain.Reservation) error
	ActiveReservationsByFlight(ctx context.Context, flightID uuid.UUID) ([]domain.Reservation, error)
}

// Event is a reservation lifecycle event recorded transactionally with
// the mutation that caused it.
type Event struct {
	ID            uuid.UUID
	Type          string
	ReservationID uuid.UUID
	FlightID      uuid.UUID
	Payload       any
}

type EventTx interface {
	AppendEvent(ctx context.Context, event Event) error
}

// Tx spans both stores plus the event log for one atomic operation.
type Tx interface {
	InventoryTx
	ReservationTx
	EventTx
}

// Store drives transactions over the two stores. Atomically applies fn
// all-or-nothing; a serialization conflict surfaces as
// domain.ErrSerializationFailure and is retried by the engine.
type Store interface {
	Atomically(ctx context.Context, fn func(tx Tx) error) error

	// Read-only paths, served outside any transaction.
	ReservationByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	ReservationsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error)
	// AvailableSeats may be stale the instant after it returns; only
	// ReserveSeats is authoritative.
	AvailableSeats(ctx context.Context, flightID uuid.UUID) (int, error)
}
