package crdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/robertarktes/flight-reservations/internal/adapters/crdb"
	"github.com/robertarktes/flight-reservations/internal/domain"
	"github.com/robertarktes/flight-reservations/internal/engine"
)

func startPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { crdbContainer.Terminate(ctx) })

	dsn, err := crdbContainer.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, dsn+"/defaultdb?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, crdb.Schema); err != nil {
		t.Fatal(err)
	}
	return pool
}

func insertFlight(t *testing.T, repo *crdb.Repository, capacity int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	now := time.Now().UTC()
	err := repo.Atomically(ctx, func(tx engine.Tx) error {
		return tx.InsertFlight(ctx, &domain.Flight{
			ID:       id,
			Capacity: capacity,
			Fares: domain.FareTable{
				domain.FareClassEconomy: decimal.RequireFromString("120.50"),
			},
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestRepository_ReserveSeats(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	pool := startPool(t)
	repo := crdb.NewRepository(pool)

	flightID := insertFlight(t, repo, 2)

	err := repo.Atomically(ctx, func(tx engine.Tx) error {
		return tx.ReserveSeats(ctx, flightID, 2)
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	available, err := repo.AvailableSeats(ctx, flightID)
	if err != nil {
		t.Fatal(err)
	}
	if available != 0 {
		t.Errorf("expected 0 available seats, got %d", available)
	}

	err = repo.Atomically(ctx, func(tx engine.Tx) error {
		return tx.ReserveSeats(ctx, flightID, 1)
	})
	if !errors.Is(err, domain.ErrInsufficientCapacity) {
		t.Errorf("expected capacity error, got %v", err)
	}

	err = repo.Atomically(ctx, func(tx engine.Tx) error {
		return tx.ReserveSeats(ctx, flightID, -2)
	})
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}

	err = repo.Atomically(ctx, func(tx engine.Tx) error {
		return tx.ReserveSeats(ctx, flightID, -1)
	})
	if !errors.Is(err, domain.ErrInsufficientCapacity) {
		t.Errorf("expected capacity error releasing below zero, got %v", err)
	}

	err = repo.Atomically(ctx, func(tx engine.Tx) error {
		return tx.ReserveSeats(ctx, uuid.New(), 1)
	})
	if !errors.Is(err, domain.ErrFlightNotFound) {
		t.Errorf("expected flight not found, got %v", err)
	}
}

func TestRepository_CreateReservationTx(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	pool := startPool(t)
	repo := crdb.NewRepository(pool)

	flightID := insertFlight(t, repo, 3)
	userID := uuid.New()
	now := time.Now().UTC()

	reservation := &domain.Reservation{
		ID:       uuid.New(),
		FlightID: flightID,
		UserID:   userID,
		Passengers: []domain.Passenger{
			{Name: "Amira Ben Salah", PassportNumber: "TN100001"},
			{Name: "Yassine Trabelsi", PassportNumber: "TN100002"},
		},
		FareClass:  domain.FareClassEconomy,
		TotalPrice: decimal.RequireFromString("241.00"),
		Status:     domain.ReservationStatusConfirmed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := repo.Atomically(ctx, func(tx engine.Tx) error {
		if err := tx.ReserveSeats(ctx, flightID, 2); err != nil {
			return err
		}
		if err := tx.InsertReservation(ctx, reservation); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, engine.Event{
			ID:            uuid.New(),
			Type:          "reservation.created",
			ReservationID: reservation.ID,
			FlightID:      flightID,
			Payload:       map[string]any{"passenger_count": 2},
		})
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	fetched, err := repo.ReservationByID(ctx, reservation.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != domain.ReservationStatusConfirmed || fetched.PassengerCount() != 2 {
		t.Errorf("expected confirmed reservation with 2 passengers, got %v with %d", fetched.Status, fetched.PassengerCount())
	}
	if !fetched.TotalPrice.Equal(reservation.TotalPrice) {
		t.Errorf("expected price %s, got %s", reservation.TotalPrice, fetched.TotalPrice)
	}

	byUser, err := repo.ReservationsByUser(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(byUser) != 1 {
		t.Errorf("expected 1 reservation for user, got %d", len(byUser))
	}

	events, err := repo.UnpublishedEvents(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].EventType != "reservation.created" {
		t.Errorf("expected 1 unpublished reservation.created event, got %v", events)
	}
}

func TestRepository_FailedTxLeavesNoTrace(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	pool := startPool(t)
	repo := crdb.NewRepository(pool)

	flightID := insertFlight(t, repo, 1)
	reservationID := uuid.New()
	now := time.Now().UTC()

	err := repo.Atomically(ctx, func(tx engine.Tx) error {
		if err := tx.InsertReservation(ctx, &domain.Reservation{
			ID:         reservationID,
			FlightID:   flightID,
			UserID:     uuid.New(),
			Passengers: []domain.Passenger{{Name: "A", PassportNumber: "TN1"}, {Name: "B", PassportNumber: "TN2"}},
			FareClass:  domain.FareClassEconomy,
			TotalPrice: decimal.RequireFromString("241.00"),
			Status:     domain.ReservationStatusConfirmed,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return err
		}
		// Overbooks a 1-seat flight; the whole transaction must abort.
		return tx.ReserveSeats(ctx, flightID, 2)
	})
	if !errors.Is(err, domain.ErrInsufficientCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}

	if _, err := repo.ReservationByID(ctx, reservationID); !errors.Is(err, domain.ErrReservationNotFound) {
		t.Errorf("expected reservation to be rolled back, got %v", err)
	}
	available, err := repo.AvailableSeats(ctx, flightID)
	if err != nil {
		t.Fatal(err)
	}
	if available != 1 {
		t.Errorf("expected all seats free after rollback, got %d available", available)
	}
}

func TestRepository_DriftingFlights(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	pool := startPool(t)
	repo := crdb.NewRepository(pool)

	flightID := insertFlight(t, repo, 5)
	now := time.Now().UTC()

	err := repo.Atomically(ctx, func(tx engine.Tx) error {
		if err := tx.ReserveSeats(ctx, flightID, 1); err != nil {
			return err
		}
		return tx.InsertReservation(ctx, &domain.Reservation{
			ID:         uuid.New(),
			FlightID:   flightID,
			UserID:     uuid.New(),
			Passengers: []domain.Passenger{{Name: "A", PassportNumber: "TN1"}},
			FareClass:  domain.FareClassEconomy,
			TotalPrice: decimal.RequireFromString("120.50"),
			Status:     domain.ReservationStatusConfirmed,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	drifts, err := repo.DriftingFlights(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(drifts) != 0 {
		t.Errorf("expected no drift, got %v", drifts)
	}

	// Corrupt the counter directly to simulate drift.
	if _, err := pool.Exec(ctx, `UPDATE flights SET booked_seats = 3 WHERE id = $1`, flightID); err != nil {
		t.Fatal(err)
	}

	drifts, err = repo.DriftingFlights(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(drifts) != 1 || drifts[0].BookedSeats != 3 || drifts[0].RosterSeats != 1 {
		t.Errorf("expected one drifting flight with 3 booked / 1 roster, got %v", drifts)
	}
}
