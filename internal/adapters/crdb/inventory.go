package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/flight-reservations/internal/domain"
)

func (s *storeTx) Flight(ctx context.Context, id uuid.UUID) (*domain.Flight, error) {
	var f domain.Flight
	err := s.tx.QueryRow(ctx, `
		SELECT id, capacity, booked_seats, fares, created_at, updated_at
		FROM flights WHERE id = $1
	`, id).Scan(&f.ID, &f.Capacity, &f.BookedSeats, &f.Fares, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrFlightNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *storeTx) InsertFlight(ctx context.Context, flight *domain.Flight) error {
	_, err := s.tx.Exec(ctx, `
		INSERT INTO flights (id, capacity, booked_seats, fares, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $4, $5)
	`, flight.ID, flight.Capacity, flight.Fares, flight.CreatedAt, flight.UpdatedAt)
	return errors.Wrap(err, "insert flight")
}

// ReserveSeats is the only statement in the schema that writes
// booked_seats. The bounds check and the increment are one conditional
// UPDATE, so a concurrent claim for the last seat leaves exactly one
// winner regardless of arrival order.
func (s *storeTx) ReserveSeats(ctx context.Context, flightID uuid.UUID, delta int) error {
	result, err := s.tx.Exec(ctx, `
		UPDATE flights
		SET booked_seats = booked_seats + $2, updated_at = now()
		WHERE id = $1
		  AND booked_seats + $2 >= 0
		  AND booked_seats + $2 <= capacity
	`, flightID, delta)
	if err != nil {
		return err
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM flights WHERE id = $1)`, flightID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrFlightNotFound
	}
	return domain.ErrInsufficientCapacity
}

func (s *storeTx) UpdateFares(ctx context.Context, flightID uuid.UUID, fares domain.FareTable) error {
	result, err := s.tx.Exec(ctx, `
		UPDATE flights SET fares = $2, updated_at = now() WHERE id = $1
	`, flightID, fares)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrFlightNotFound
	}
	return nil
}
