package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/flight-reservations/internal/domain"
)

const reservationSelect = `
	SELECT id, flight_id, user_id, passengers, fare_class, total_price, status, created_at, updated_at
	FROM reservations`

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var r domain.Reservation
	err := row.Scan(&r.ID, &r.FlightID, &r.UserID, &r.Passengers, &r.FareClass,
		&r.TotalPrice, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	defer rows.Close()
	var out []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *storeTx) Reservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return scanReservation(s.tx.QueryRow(ctx, reservationSelect+` WHERE id = $1`, id))
}

func (s *storeTx) InsertReservation(ctx context.Context, r *domain.Reservation) error {
	_, err := s.tx.Exec(ctx, `
		INSERT INTO reservations (id, flight_id, user_id, passengers, fare_class, total_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.FlightID, r.UserID, r.Passengers, r.FareClass, r.TotalPrice, r.Status, r.CreatedAt, r.UpdatedAt)
	return errors.Wrap(err, "insert reservation")
}

func (s *storeTx) UpdateReservation(ctx context.Context, r *domain.Reservation) error {
	result, err := s.tx.Exec(ctx, `
		UPDATE reservations
		SET passengers = $2, fare_class = $3, total_price = $4, status = $5, updated_at = $6
		WHERE id = $1
	`, r.ID, r.Passengers, r.FareClass, r.TotalPrice, r.Status, r.UpdatedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

func (s *storeTx) ActiveReservationsByFlight(ctx context.Context, flightID uuid.UUID) ([]domain.Reservation, error) {
	rows, err := s.tx.Query(ctx, reservationSelect+` WHERE flight_id = $1 AND status != $2 ORDER BY created_at`,
		flightID, domain.ReservationStatusCancelled)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}
