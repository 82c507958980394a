package engine_test

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/robertarktes/flight-reservations/internal/domain"
	"github.com/robertarktes/flight-reservations/internal/engine"
)

// memStore is an in-memory engine.Store. One big lock makes every
// transaction serializable; a snapshot taken at the start restores
// state when fn fails, so aborted operations leave nothing behind.
type memStore struct {
	mu           sync.Mutex
	flights      map[uuid.UUID]*domain.Flight
	reservations map[uuid.UUID]*domain.Reservation
	events       []engine.Event
}

func newMemStore() *memStore {
	return &memStore{
		flights:      make(map[uuid.UUID]*domain.Flight),
		reservations: make(map[uuid.UUID]*domain.Reservation),
	}
}

func copyFlight(f *domain.Flight) *domain.Flight {
	clone := *f
	clone.Fares = make(domain.FareTable, len(f.Fares))
	for class, rate := range f.Fares {
		clone.Fares[class] = rate
	}
	return &clone
}

func copyReservation(r *domain.Reservation) *domain.Reservation {
	clone := *r
	clone.Passengers = append([]domain.Passenger(nil), r.Passengers...)
	return &clone
}

func (s *memStore) snapshot() (map[uuid.UUID]*domain.Flight, map[uuid.UUID]*domain.Reservation, int) {
	flights := make(map[uuid.UUID]*domain.Flight, len(s.flights))
	for id, f := range s.flights {
		flights[id] = copyFlight(f)
	}
	reservations := make(map[uuid.UUID]*domain.Reservation, len(s.reservations))
	for id, r := range s.reservations {
		reservations[id] = copyReservation(r)
	}
	return flights, reservations, len(s.events)
}

func (s *memStore) Atomically(ctx context.Context, fn func(tx engine.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flights, reservations, eventCount := s.snapshot()
	if err := fn(&memTx{store: s}); err != nil {
		s.flights = flights
		s.reservations = reservations
		s.events = s.events[:eventCount]
		return err
	}
	return nil
}

func (s *memStore) ReservationByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return copyReservation(r), nil
}

func (s *memStore) ReservationsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.UserID == userID {
			out = append(out, *copyReservation(r))
		}
	}
	return out, nil
}

func (s *memStore) AvailableSeats(ctx context.Context, flightID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flights[flightID]
	if !ok {
		return 0, domain.ErrFlightNotFound
	}
	return f.AvailableSeats(), nil
}

func (s *memStore) bookedSeats(flightID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flights[flightID].BookedSeats
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, len(s.events))
	for i, e := range s.events {
		types[i] = e.Type
	}
	return types
}

type memTx struct {
	store *memStore
}

var _ engine.Tx = (*memTx)(nil)

func (t *memTx) Flight(ctx context.Context, id uuid.UUID) (*domain.Flight, error) {
	f, ok := t.store.flights[id]
	if !ok {
		return nil, domain.ErrFlightNotFound
	}
	return copyFlight(f), nil
}

func (t *memTx) InsertFlight(ctx context.Context, flight *domain.Flight) error {
	t.store.flights[flight.ID] = copyFlight(flight)
	return nil
}

func (t *memTx) ReserveSeats(ctx context.Context, flightID uuid.UUID, delta int) error {
	f, ok := t.store.flights[flightID]
	if !ok {
		return domain.ErrFlightNotFound
	}
	next := f.BookedSeats + delta
	if next < 0 || next > f.Capacity {
		return domain.ErrInsufficientCapacity
	}
	f.BookedSeats = next
	return nil
}

func (t *memTx) UpdateFares(ctx context.Context, flightID uuid.UUID, fares domain.FareTable) error {
	f, ok := t.store.flights[flightID]
	if !ok {
		return domain.ErrFlightNotFound
	}
	f.Fares = fares
	return nil
}

func (t *memTx) Reservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	r, ok := t.store.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return copyReservation(r), nil
}

func (t *memTx) InsertReservation(ctx context.Context, r *domain.Reservation) error {
	t.store.reservations[r.ID] = copyReservation(r)
	return nil
}

func (t *memTx) UpdateReservation(ctx context.Context, r *domain.Reservation) error {
	if _, ok := t.store.reservations[r.ID]; !ok {
		return domain.ErrReservationNotFound
	}
	t.store.reservations[r.ID] = copyReservation(r)
	return nil
}

func (t *memTx) AppendEvent(ctx context.Context, event engine.Event) error {
	t.store.events = append(t.store.events, event)
	return nil
}

func (t *memTx) ActiveReservationsByFlight(ctx context.Context, flightID uuid.UUID) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, r := range t.store.reservations {
		if r.FlightID == flightID && !r.Cancelled() {
			out = append(out, *copyReservation(r))
		}
	}
	return out, nil
}
