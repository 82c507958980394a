package engine

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/flight-reservations/internal/domain"
	"github.com/robertarktes/flight-reservations/internal/observability"
)

const (
	EventReservationCreated   = "reservation.created"
	EventReservationUpdated   = "reservation.updated"
	EventReservationCancelled = "reservation.cancelled"
	EventReservationRepriced  = "reservation.repriced"
	EventFlightCreated        = "flight.created"
)

const (
	defaultMaxAttempts = 4
	defaultOpTimeout   = 5 * time.Second
)

// Auditor records committed mutations. Failures are logged, never
// propagated to the caller.
type Auditor interface {
	Record(ctx context.Context, action string, principal domain.Principal, r *domain.Reservation) error
}

// Engine orchestrates cross-store operations as atomic transactions.
// It is the sole writer of booked seats, total price and status.
type Engine struct {
	store       Store
	logger      observability.Logger
	audit       Auditor
	maxAttempts int
	opTimeout   time.Duration
}

type Option func(*Engine)

func WithAuditor(a Auditor) Option {
	return func(e *Engine) { e.audit = a }
}

func WithMaxAttempts(n int) Option {
	return func(e *Engine) { e.maxAttempts = n }
}

func WithOperationTimeout(d time.Duration) Option {
	return func(e *Engine) { e.opTimeout = d }
}

func New(store Store, logger observability.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		opTimeout:   defaultOpTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// transact runs fn with a bounded retry budget for serialization
// conflicts. On exhaustion or deadline the caller sees domain.ErrBusy,
// which is safe to retry with the same idempotency key.
func (e *Engine) transact(ctx context.Context, op string, fn func(tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		observability.TxDuration.Observe(time.Since(start).Seconds())
	}()

	var err error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		err = e.store.Atomically(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrSerializationFailure) {
			if ctx.Err() != nil {
				return domain.ErrBusy
			}
			return err
		}
		backoff := time.Duration(1<<attempt) * 5 * time.Millisecond
		select {
		case <-ctx.Done():
			return domain.ErrBusy
		case <-time.After(backoff):
		}
	}
	e.logger.WithField("op", op).Warn("retry budget exhausted")
	return domain.ErrBusy
}

func (e *Engine) finish(ctx context.Context, op string, principal domain.Principal, r *domain.Reservation, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, domain.ErrInsufficientCapacity) {
			observability.CapacityRejections.Inc()
		}
	}
	observability.EngineOps.WithLabelValues(op, outcome).Inc()
	if err == nil && e.audit != nil {
		if auditErr := e.audit.Record(ctx, op, principal, r); auditErr != nil {
			e.logger.WithField("op", op).Error("audit record failed", auditErr)
		}
	}
}

type CreateReservationInput struct {
	FlightID   uuid.UUID
	FareClass  domain.FareClass
	Passengers []domain.Passenger
}

func (e *Engine) CreateReservation(ctx context.Context, principal domain.Principal, input CreateReservationInput) (reservation *domain.Reservation, err error) {
	defer func() { e.finish(ctx, "create_reservation", principal, reservation, err) }()

	if err = domain.ValidateRoster(input.Passengers); err != nil {
		return nil, err
	}

	err = e.transact(ctx, "create_reservation", func(tx Tx) error {
		if err := tx.ReserveSeats(ctx, input.FlightID, len(input.Passengers)); err != nil {
			return err
		}
		flight, err := tx.Flight(ctx, input.FlightID)
		if err != nil {
			return err
		}
		total, err := domain.ComputePrice(flight, len(input.Passengers), input.FareClass)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		reservation = &domain.Reservation{
			ID:         uuid.New(),
			FlightID:   input.FlightID,
			UserID:     principal.UserID,
			Passengers: append([]domain.Passenger(nil), input.Passengers...),
			FareClass:  input.FareClass,
			TotalPrice: total,
			Status:     domain.ReservationStatusConfirmed,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertReservation(ctx, reservation); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, e.event(EventReservationCreated, reservation))
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func (e *Engine) AddPassenger(ctx context.Context, principal domain.Principal, reservationID uuid.UUID, passenger domain.Passenger) (reservation *domain.Reservation, err error) {
	defer func() { e.finish(ctx, "add_passenger", principal, reservation, err) }()

	if err = passenger.Validate(); err != nil {
		return nil, err
	}

	err = e.transact(ctx, "add_passenger", func(tx Tx) error {
		r, err := e.loadOwned(ctx, tx, principal, reservationID)
		if err != nil {
			return err
		}
		if r.Cancelled() {
			return domain.ErrReservationCancelled
		}
		if r.PassengerIndex(passenger.PassportNumber) >= 0 {
			return errors.Wrapf(domain.ErrInvalidPassengerData, "duplicate passport number %s", passenger.PassportNumber)
		}
		// Seat claim and roster write are one transaction; checking
		// availability separately would reintroduce the race this
		// engine exists to close.
		if err := tx.ReserveSeats(ctx, r.FlightID, 1); err != nil {
			return err
		}
		flight, err := tx.Flight(ctx, r.FlightID)
		if err != nil {
			return err
		}
		r.Passengers = append(r.Passengers, passenger)
		if r.TotalPrice, err = domain.ComputePrice(flight, r.PassengerCount(), r.FareClass); err != nil {
			return err
		}
		r.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		reservation = r
		return tx.AppendEvent(ctx, e.event(EventReservationUpdated, r))
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func (e *Engine) RemovePassenger(ctx context.Context, principal domain.Principal, reservationID uuid.UUID, passportNumber string) (reservation *domain.Reservation, err error) {
	defer func() { e.finish(ctx, "remove_passenger", principal, reservation, err) }()

	err = e.transact(ctx, "remove_passenger", func(tx Tx) error {
		r, err := e.loadOwned(ctx, tx, principal, reservationID)
		if err != nil {
			return err
		}
		if r.Cancelled() {
			return domain.ErrReservationCancelled
		}
		if r.PassengerCount() == 1 {
			return domain.ErrMinimumPassenger
		}
		idx := r.PassengerIndex(passportNumber)
		if idx < 0 {
			return domain.ErrPassengerNotFound
		}
		// Releasing a held seat cannot exceed capacity bounds.
		if err := tx.ReserveSeats(ctx, r.FlightID, -1); err != nil {
			return err
		}
		flight, err := tx.Flight(ctx, r.FlightID)
		if err != nil {
			return err
		}
		r.Passengers = append(r.Passengers[:idx], r.Passengers[idx+1:]...)
		if r.TotalPrice, err = domain.ComputePrice(flight, r.PassengerCount(), r.FareClass); err != nil {
			return err
		}
		r.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		reservation = r
		return tx.AppendEvent(ctx, e.event(EventReservationUpdated, r))
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

type PassengerUpdate struct {
	Name           string
	PassportNumber string
}

func (e *Engine) UpdatePassenger(ctx context.Context, principal domain.Principal, reservationID uuid.UUID, passportNumber string, update PassengerUpdate) (reservation *domain.Reservation, err error) {
	defer func() { e.finish(ctx, "update_passenger", principal, reservation, err) }()

	updated := domain.Passenger{Name: update.Name, PassportNumber: update.PassportNumber}
	if err = updated.Validate(); err != nil {
		return nil, err
	}

	err = e.transact(ctx, "update_passenger", func(tx Tx) error {
		r, err := e.loadOwned(ctx, tx, principal, reservationID)
		if err != nil {
			return err
		}
		if r.Cancelled() {
			return domain.ErrReservationCancelled
		}
		idx := r.PassengerIndex(passportNumber)
		if idx < 0 {
			return domain.ErrPassengerNotFound
		}
		if other := r.PassengerIndex(updated.PassportNumber); other >= 0 && other != idx {
			return errors.Wrapf(domain.ErrInvalidPassengerData, "duplicate passport number %s", updated.PassportNumber)
		}
		// No seat or price effect: in-place roster field update.
		r.Passengers[idx] = updated
		r.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		reservation = r
		return tx.AppendEvent(ctx, e.event(EventReservationUpdated, r))
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// CancelReservation releases all held seats in the same transaction and
// is idempotent: cancelling a cancelled reservation is a no-op success.
// TotalPrice keeps its last value as a historical record.
func (e *Engine) CancelReservation(ctx context.Context, principal domain.Principal, reservationID uuid.UUID) (reservation *domain.Reservation, err error) {
	defer func() { e.finish(ctx, "cancel_reservation", principal, reservation, err) }()

	err = e.transact(ctx, "cancel_reservation", func(tx Tx) error {
		r, err := e.loadOwned(ctx, tx, principal, reservationID)
		if err != nil {
			return err
		}
		if r.Cancelled() {
			reservation = r
			return nil
		}
		if err := tx.ReserveSeats(ctx, r.FlightID, -r.PassengerCount()); err != nil {
			return err
		}
		r.Status = domain.ReservationStatusCancelled
		r.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		reservation = r
		return tx.AppendEvent(ctx, e.event(EventReservationCancelled, r))
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func (e *Engine) ChangeFareClass(ctx context.Context, principal domain.Principal, reservationID uuid.UUID, class domain.FareClass) (reservation *domain.Reservation, err error) {
	defer func() { e.finish(ctx, "change_fare_class", principal, reservation, err) }()

	err = e.transact(ctx, "change_fare_class", func(tx Tx) error {
		r, err := e.loadOwned(ctx, tx, principal, reservationID)
		if err != nil {
			return err
		}
		if r.Cancelled() {
			return domain.ErrReservationCancelled
		}
		flight, err := tx.Flight(ctx, r.FlightID)
		if err != nil {
			return err
		}
		if r.TotalPrice, err = domain.ComputePrice(flight, r.PassengerCount(), class); err != nil {
			return err
		}
		r.FareClass = class
		r.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		reservation = r
		return tx.AppendEvent(ctx, e.event(EventReservationUpdated, r))
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

type CreateFlightInput struct {
	ID       uuid.UUID
	Capacity int
	Fares    domain.FareTable
}

func (e *Engine) CreateFlight(ctx context.Context, principal domain.Principal, input CreateFlightInput) (*domain.Flight, error) {
	if !principal.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if input.Capacity <= 0 {
		return nil, errors.Wrap(domain.ErrInvalidFlightData, "capacity must be positive")
	}
	if err := input.Fares.Validate(); err != nil {
		return nil, err
	}

	id := input.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now().UTC()
	flight := &domain.Flight{
		ID:        id,
		Capacity:  input.Capacity,
		Fares:     input.Fares,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := e.transact(ctx, "create_flight", func(tx Tx) error {
		if err := tx.InsertFlight(ctx, flight); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, Event{
			ID:       uuid.New(),
			Type:     EventFlightCreated,
			FlightID: flight.ID,
			Payload:  map[string]any{"flight_id": flight.ID, "capacity": flight.Capacity},
		})
	})
	if err != nil {
		return nil, err
	}
	return flight, nil
}

// RepriceFlight installs a new fare table and recomputes the total of
// every non-cancelled reservation on the flight in one transaction, so
// a fare change (promotion applied or withdrawn) can never leave a
// reservation priced against a stale table.
func (e *Engine) RepriceFlight(ctx context.Context, principal domain.Principal, flightID uuid.UUID, fares domain.FareTable) (int, error) {
	if !principal.IsAdmin() {
		return 0, domain.ErrForbidden
	}
	if err := fares.Validate(); err != nil {
		return 0, err
	}

	var repriced int
	err := e.transact(ctx, "reprice_flight", func(tx Tx) error {
		repriced = 0
		flight, err := tx.Flight(ctx, flightID)
		if err != nil {
			return err
		}
		if err := tx.UpdateFares(ctx, flightID, fares); err != nil {
			return err
		}
		flight.Fares = fares
		active, err := tx.ActiveReservationsByFlight(ctx, flightID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for i := range active {
			r := &active[i]
			total, err := domain.ComputePrice(flight, r.PassengerCount(), r.FareClass)
			if err != nil {
				return err
			}
			if total.Equal(r.TotalPrice) {
				continue
			}
			r.TotalPrice = total
			r.UpdatedAt = now
			if err := tx.UpdateReservation(ctx, r); err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, e.event(EventReservationRepriced, r)); err != nil {
				return err
			}
			repriced++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	observability.EngineOps.WithLabelValues("reprice_flight", "ok").Inc()
	return repriced, nil
}

func (e *Engine) GetReservation(ctx context.Context, principal domain.Principal, reservationID uuid.UUID) (*domain.Reservation, error) {
	r, err := e.store.ReservationByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !principal.CanAccess(r.UserID) {
		return nil, domain.ErrReservationNotFound
	}
	return r, nil
}

func (e *Engine) ListReservations(ctx context.Context, principal domain.Principal) ([]domain.Reservation, error) {
	return e.store.ReservationsByUser(ctx, principal.UserID)
}

func (e *Engine) AvailableSeats(ctx context.Context, flightID uuid.UUID) (int, error) {
	return e.store.AvailableSeats(ctx, flightID)
}

// loadOwned fetches a reservation and hides it from principals that do
// not own it, matching the not-found contract of the read path.
func (e *Engine) loadOwned(ctx context.Context, tx Tx, principal domain.Principal, id uuid.UUID) (*domain.Reservation, error) {
	r, err := tx.Reservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.CanAccess(r.UserID) {
		return nil, domain.ErrReservationNotFound
	}
	return r, nil
}

func (e *Engine) event(eventType string, r *domain.Reservation) Event {
	return Event{
		ID:            uuid.New(),
		Type:          eventType,
		ReservationID: r.ID,
		FlightID:      r.FlightID,
		Payload: map[string]any{
			"reservation_id":  r.ID,
			"flight_id":       r.FlightID,
			"status":          r.Status,
			"passenger_count": r.PassengerCount(),
			"total_price":     r.TotalPrice,
		},
	}
}
