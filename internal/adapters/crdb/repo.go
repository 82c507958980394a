package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/flight-reservations/internal/domain"
	"github.com/robertarktes/flight-reservations/internal/engine"
)

const serializationFailureCode = "40001"

// Repository implements engine.Store over one Postgres/CockroachDB
// schema, so an engine operation spans both stores in a single
// SERIALIZABLE transaction.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ engine.Store = (*Repository)(nil)

func (r *Repository) Atomically(ctx context.Context, fn func(tx engine.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE"); err != nil {
		return err
	}

	if err := fn(&storeTx{tx: tx}); err != nil {
		return mapSerialization(err)
	}
	return mapSerialization(tx.Commit(ctx))
}

func mapSerialization(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == serializationFailureCode {
		return domain.ErrSerializationFailure
	}
	return err
}

// storeTx is the transaction-scoped view of both stores.
type storeTx struct {
	tx pgx.Tx
}

var _ engine.Tx = (*storeTx)(nil)

func (r *Repository) ReservationByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return scanReservation(r.pool.QueryRow(ctx, reservationSelect+` WHERE id = $1`, id))
}

func (r *Repository) ReservationsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, reservationSelect+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// AvailableSeats is a read-only snapshot; it may be stale the instant
// after it returns. Only ReserveSeats decides.
func (r *Repository) AvailableSeats(ctx context.Context, flightID uuid.UUID) (int, error) {
	var available int
	err := r.pool.QueryRow(ctx, `
		SELECT capacity - booked_seats FROM flights WHERE id = $1
	`, flightID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrFlightNotFound
	}
	if err != nil {
		return 0, err
	}
	return available, nil
}

// SeatDrift reports flights whose booked seat count disagrees with the
// passenger sum of their non-cancelled reservations. An empty result
// means the inventory invariant holds.
type SeatDrift struct {
	FlightID    uuid.UUID
	BookedSeats int
	RosterSeats int
}

func (r *Repository) DriftingFlights(ctx context.Context) ([]SeatDrift, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT f.id, f.booked_seats, COALESCE(SUM(jsonb_array_length(res.passengers)), 0) AS roster
		FROM flights f
		LEFT JOIN reservations res ON res.flight_id = f.id AND res.status != 'cancelled'
		GROUP BY f.id, f.booked_seats
		HAVING f.booked_seats != COALESCE(SUM(jsonb_array_length(res.passengers)), 0)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drifts []SeatDrift
	for rows.Next() {
		var d SeatDrift
		if err := rows.Scan(&d.FlightID, &d.BookedSeats, &d.RosterSeats); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}
