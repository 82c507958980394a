package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/flight-reservations/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/flight-reservations/internal/adapters/redis"
	"github.com/robertarktes/flight-reservations/internal/auth"
	"github.com/robertarktes/flight-reservations/internal/config"
	"github.com/robertarktes/flight-reservations/internal/domain"
	"github.com/robertarktes/flight-reservations/internal/engine"
	"github.com/robertarktes/flight-reservations/internal/idempotency"
	"github.com/robertarktes/flight-reservations/internal/observability"
	"github.com/shopspring/decimal"
)

// ReservationEngine is the consistency engine surface the handlers
// consume; tests substitute a stub.
type ReservationEngine interface {
	CreateReservation(ctx context.Context, principal domain.Principal, input engine.CreateReservationInput) (*domain.Reservation, error)
	AddPassenger(ctx context.Context, principal domain.Principal, reservationID uuid.UUID, passenger domain.Passenger) (*domain.Reservation, error)
	RemovePassenger(ctx context.Context, principal domain.Principal, reservationID uuid.UUID, passportNumber string) (*domain.Reservation, error)
	UpdatePassenger(ctx context.Context, principal domain.Principal, reservationID uuid.UUID, passportNumber string, update engine.PassengerUpdate) (*domain.Reservation, error)
	CancelReservation(ctx context.Context, principal domain.Principal, reservationID uuid.UUID) (*domain.Reservation, error)
	ChangeFareClass(ctx context.Context, principal domain.Principal, reservationID uuid.UUID, class domain.FareClass) (*domain.Reservation, error)
	CreateFlight(ctx context.Context, principal domain.Principal, input engine.CreateFlightInput) (*domain.Flight, error)
	RepriceFlight(ctx context.Context, principal domain.Principal, flightID uuid.UUID, fares domain.FareTable) (int, error)
	GetReservation(ctx context.Context, principal domain.Principal, reservationID uuid.UUID) (*domain.Reservation, error)
	ListReservations(ctx context.Context, principal domain.Principal) ([]domain.Reservation, error)
	AvailableSeats(ctx context.Context, flightID uuid.UUID) (int, error)
}

var _ ReservationEngine = (*engine.Engine)(nil)

type Handlers struct {
	cfg     *config.Config
	engine  ReservationEngine
	catalog *mongo.CatalogRepository
	cache   *redisadapter.Cache
	idemp   *idempotency.Idempotency
	logger  observability.Logger
}

func NewHandlers(cfg *config.Config, eng ReservationEngine, catalog *mongo.CatalogRepository, cache *redisadapter.Cache, idemp *idempotency.Idempotency, logger observability.Logger) *Handlers {
	return &Handlers{
		cfg:     cfg,
		engine:  eng,
		catalog: catalog,
		cache:   cache,
		idemp:   idemp,
		logger:  logger,
	}
}

type passengerPayload struct {
	Name           string `json:"name"`
	PassportNumber string `json:"passport_number"`
}

type reservationPayload struct {
	ID             uuid.UUID          `json:"id"`
	FlightID       uuid.UUID          `json:"flight_id"`
	Passengers     []passengerPayload `json:"passengers"`
	PassengerCount int                `json:"passenger_count"`
	FareClass      string             `json:"fare_class"`
	TotalPrice     decimal.Decimal    `json:"total_price"`
	Status         string             `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func toPayload(r *domain.Reservation) reservationPayload {
	passengers := make([]passengerPayload, len(r.Passengers))
	for i, p := range r.Passengers {
		passengers[i] = passengerPayload{Name: p.Name, PassportNumber: p.PassportNumber}
	}
	return reservationPayload{
		ID:             r.ID,
		FlightID:       r.FlightID,
		Passengers:     passengers,
		PassengerCount: r.PassengerCount(),
		FareClass:      string(r.FareClass),
		TotalPrice:     r.TotalPrice,
		Status:         string(r.Status),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body any) []byte {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

type errorPayload struct {
	Error          string `json:"error"`
	Code           string `json:"code"`
	AvailableSeats *int   `json:"available_seats,omitempty"`
}

// writeError maps error kinds onto HTTP statuses. For capacity
// rejections a best-effort availability count is attached so the caller
// can render something useful.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error, flightID uuid.UUID) {
	payload := errorPayload{Error: err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrInvalidPassengerData):
		status, payload.Code = http.StatusBadRequest, "invalid_passenger_data"
	case errors.Is(err, domain.ErrUnknownFareClass):
		status, payload.Code = http.StatusBadRequest, "unknown_fare_class"
	case errors.Is(err, domain.ErrInvalidFlightData):
		status, payload.Code = http.StatusBadRequest, "invalid_flight_data"
	case errors.Is(err, domain.ErrInsufficientCapacity):
		status, payload.Code = http.StatusConflict, "insufficient_capacity"
		if flightID != uuid.Nil {
			if available, availErr := h.engine.AvailableSeats(r.Context(), flightID); availErr == nil {
				payload.AvailableSeats = &available
			}
		}
	case errors.Is(err, domain.ErrMinimumPassenger):
		status, payload.Code = http.StatusConflict, "minimum_passenger_violation"
	case errors.Is(err, domain.ErrReservationCancelled):
		status, payload.Code = http.StatusConflict, "reservation_cancelled"
	case errors.Is(err, domain.ErrBusy):
		status, payload.Code = http.StatusConflict, "busy"
		w.Header().Set("Retry-After", "1")
	case errors.Is(err, domain.ErrReservationNotFound):
		status, payload.Code = http.StatusNotFound, "reservation_not_found"
	case errors.Is(err, domain.ErrFlightNotFound):
		status, payload.Code = http.StatusNotFound, "flight_not_found"
	case errors.Is(err, domain.ErrPassengerNotFound):
		status, payload.Code = http.StatusNotFound, "passenger_not_found"
	case errors.Is(err, domain.ErrForbidden):
		status, payload.Code = http.StatusForbidden, "forbidden"
	default:
		payload = errorPayload{Error: "internal error", Code: "internal"}
		h.logger.WithError(err).Error("request failed")
	}

	h.writeJSON(w, status, payload)
}

// replay serves a stored response for a repeated Idempotency-Key. The
// bool reports whether the request was handled.
func (h *Handlers) replay(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return true
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return true
	}
	return false
}

func (h *Handlers) remember(r *http.Request, status int, body []byte) {
	if body == nil {
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if err := h.idemp.Set(r.Context(), key, idempotency.Response{Status: status, Result: body}); err != nil {
		h.logger.WithError(err).Warn("failed to store idempotent response")
	}
}

func principalOr401(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "missing principal", http.StatusUnauthorized)
	}
	return principal, ok
}

func parseFares(raw map[string]string) (domain.FareTable, error) {
	fares := make(domain.FareTable, len(raw))
	for class, rate := range raw {
		value, err := decimal.NewFromString(rate)
		if err != nil {
			return nil, errors.Wrapf(domain.ErrInvalidFlightData, "fare %s: %s", class, rate)
		}
		fares[domain.FareClass(class)] = value
	}
	return fares, nil
}

func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	if h.replay(w, r) {
		return
	}
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}

	var req struct {
		FlightID   uuid.UUID          `json:"flight_id"`
		FareClass  string             `json:"fare_class"`
		Passengers []passengerPayload `json:"passengers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	passengers := make([]domain.Passenger, len(req.Passengers))
	for i, p := range req.Passengers {
		passengers[i] = domain.Passenger{Name: p.Name, PassportNumber: p.PassportNumber}
	}

	reservation, err := h.engine.CreateReservation(r.Context(), principal, engine.CreateReservationInput{
		FlightID:   req.FlightID,
		FareClass:  domain.FareClass(req.FareClass),
		Passengers: passengers,
	})
	if err != nil {
		h.writeError(w, r, err, req.FlightID)
		return
	}

	body := h.writeJSON(w, http.StatusCreated, toPayload(reservation))
	h.remember(r, http.StatusCreated, body)
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	reservation, err := h.engine.GetReservation(r.Context(), principal, id)
	if err != nil {
		h.writeError(w, r, err, uuid.Nil)
		return
	}
	h.writeJSON(w, http.StatusOK, toPayload(reservation))
}

func (h *Handlers) ListReservations(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	reservations, err := h.engine.ListReservations(r.Context(), principal)
	if err != nil {
		h.writeError(w, r, err, uuid.Nil)
		return
	}
	payload := make([]reservationPayload, len(reservations))
	for i := range reservations {
		payload[i] = toPayload(&reservations[i])
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"reservations": payload})
}

func (h *Handlers) AddPassenger(w http.ResponseWriter, r *http.Request) {
	if h.replay(w, r) {
		return
	}
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req passengerPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reservation, err := h.engine.AddPassenger(r.Context(), principal, id, domain.Passenger{
		Name:           req.Name,
		PassportNumber: req.PassportNumber,
	})
	if err != nil {
		var flightID uuid.UUID
		if reservation != nil {
			flightID = reservation.FlightID
		}
		h.writeError(w, r, err, flightID)
		return
	}

	body := h.writeJSON(w, http.StatusOK, toPayload(reservation))
	h.remember(r, http.StatusOK, body)
}

func (h *Handlers) UpdatePassenger(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	passport := chi.URLParam(r, "passport")

	var req passengerPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reservation, err := h.engine.UpdatePassenger(r.Context(), principal, id, passport, engine.PassengerUpdate{
		Name:           req.Name,
		PassportNumber: req.PassportNumber,
	})
	if err != nil {
		h.writeError(w, r, err, uuid.Nil)
		return
	}
	h.writeJSON(w, http.StatusOK, toPayload(reservation))
}

func (h *Handlers) RemovePassenger(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	passport := chi.URLParam(r, "passport")

	reservation, err := h.engine.RemovePassenger(r.Context(), principal, id, passport)
	if err != nil {
		h.writeError(w, r, err, uuid.Nil)
		return
	}
	h.writeJSON(w, http.StatusOK, toPayload(reservation))
}

func (h *Handlers) CancelReservation(w http.ResponseWriter, r *http.Request) {
	if h.replay(w, r) {
		return
	}
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	reservation, err := h.engine.CancelReservation(r.Context(), principal, id)
	if err != nil {
		h.writeError(w, r, err, uuid.Nil)
		return
	}

	body := h.writeJSON(w, http.StatusOK, toPayload(reservation))
	h.remember(r, http.StatusOK, body)
}

func (h *Handlers) ChangeFareClass(w http.ResponseWriter, r *http.Request) {
	if h.replay(w, r) {
		return
	}
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		FareClass string `json:"fare_class"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reservation, err := h.engine.ChangeFareClass(r.Context(), principal, id, domain.FareClass(req.FareClass))
	if err != nil {
		h.writeError(w, r, err, uuid.Nil)
		return
	}

	body := h.writeJSON(w, http.StatusOK, toPayload(reservation))
	h.remember(r, http.StatusOK, body)
}

func (h *Handlers) FlightAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	available, err := h.engine.AvailableSeats(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, uuid.Nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"flight_id": id, "available_seats": available})
}

func (h *Handlers) GetFlight(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var doc mongo.FlightDoc
	if hit, err := h.cache.GetFlight(r.Context(), id, &doc); err == nil && hit {
		h.writeJSON(w, http.StatusOK, doc)
		return
	}

	fetched, err := h.catalog.GetFlight(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, uuid.Nil)
		return
	}
	if err := h.cache.SetFlight(r.Context(), id, fetched); err != nil {
		h.logger.WithError(err).Warn("failed to cache flight")
	}
	h.writeJSON(w, http.StatusOK, fetched)
}

func (h *Handlers) CreateFlight(w http.ResponseWriter, r *http.Request) {
	if h.replay(w, r) {
		return
	}
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}

	var req struct {
		Number    string            `json:"number"`
		Departure string            `json:"departure"`
		Arrival   string            `json:"arrival"`
		Schedule  time.Time         `json:"schedule"`
		Plane     string            `json:"plane"`
		Crew      string            `json:"crew"`
		Company   string            `json:"company"`
		Capacity  int               `json:"capacity"`
		Fares     map[string]string `json:"fares"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fares, err := parseFares(req.Fares)
	if err != nil {
		h.writeError(w, r, err, uuid.Nil)
		return
	}

	flight, err := h.engine.CreateFlight(r.Context(), principal, engine.CreateFlightInput{
		Capacity: req.Capacity,
		Fares:    fares,
	})
	if err != nil {
		h.writeError(w, r, err, uuid.Nil)
		return
	}

	catalogFares := make(map[string]float64, len(fares))
	for class, rate := range fares {
		catalogFares[string(class)] = rate.InexactFloat64()
	}
	doc := mongo.FlightDoc{
		ID:        flight.ID,
		Number:    req.Number,
		Departure: req.Departure,
		Arrival:   req.Arrival,
		Schedule:  req.Schedule,
		Plane:     req.Plane,
		Crew:      req.Crew,
		Company:   req.Company,
		Capacity:  req.Capacity,
		Fares:     catalogFares,
	}
	if err := h.catalog.CreateFlight(r.Context(), doc); err != nil {
		h.logger.WithError(err).WithField("flight_id", flight.ID).Error("inventory row created but catalog write failed")
	}

	body := h.writeJSON(w, http.StatusCreated, map[string]any{
		"flight_id":       flight.ID,
		"capacity":        flight.Capacity,
		"available_seats": flight.AvailableSeats(),
	})
	h.remember(r, http.StatusCreated, body)
}

// RepriceFlight installs a new fare table, either given explicitly or
// derived from the active promotion for the flight's destination, and
// reprices every active reservation in one engine transaction.
func (h *Handlers) RepriceFlight(w http.ResponseWriter, r *http.Request) {
	if h.replay(w, r) {
		return
	}
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		Fares        map[string]string `json:"fares"`
		UsePromotion bool              `json:"use_promotion"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var fares domain.FareTable
	if req.UsePromotion {
		doc, err := h.catalog.GetFlight(r.Context(), id)
		if err != nil {
			h.writeError(w, r, err, uuid.Nil)
			return
		}
		promo, err := h.catalog.ActivePromotion(r.Context(), doc.Arrival, time.Now().UTC())
		if err != nil {
			h.writeError(w, r, err, uuid.Nil)
			return
		}
		if promo == nil {
			http.Error(w, "no active promotion for destination", http.StatusNotFound)
			return
		}
		fares = make(domain.FareTable, len(promo.Fares))
		for class, rate := range promo.Fares {
			fares[domain.FareClass(class)] = decimal.NewFromFloat(rate)
		}
	} else {
		if fares, err = parseFares(req.Fares); err != nil {
			h.writeError(w, r, err, uuid.Nil)
			return
		}
	}

	repriced, err := h.engine.RepriceFlight(r.Context(), principal, id, fares)
	if err != nil {
		h.writeError(w, r, err, uuid.Nil)
		return
	}

	catalogFares := make(map[string]float64, len(fares))
	for class, rate := range fares {
		catalogFares[string(class)] = rate.InexactFloat64()
	}
	if err := h.catalog.UpdateFares(r.Context(), id, catalogFares); err == nil {
		if err := h.cache.InvalidateFlight(r.Context(), id); err != nil {
			h.logger.WithError(err).Warn("failed to invalidate flight cache")
		}
	}

	body := h.writeJSON(w, http.StatusOK, map[string]any{"flight_id": id, "repriced": repriced})
	h.remember(r, http.StatusOK, body)
}

func (h *Handlers) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	if h.replay(w, r) {
		return
	}
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	if !principal.IsAdmin() {
		h.writeError(w, r, domain.ErrForbidden, uuid.Nil)
		return
	}

	var req struct {
		Destination string             `json:"destination"`
		Fares       map[string]float64 `json:"fares"`
		StartsAt    time.Time          `json:"starts_at"`
		EndsAt      time.Time          `json:"ends_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Destination == "" || len(req.Fares) == 0 || !req.EndsAt.After(req.StartsAt) {
		http.Error(w, "destination, fares and a valid window are required", http.StatusBadRequest)
		return
	}

	doc := mongo.PromotionDoc{
		ID:          uuid.New(),
		Destination: req.Destination,
		Fares:       req.Fares,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
	}
	if err := h.catalog.CreatePromotion(r.Context(), doc); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	body := h.writeJSON(w, http.StatusCreated, map[string]any{"promotion_id": doc.ID})
	h.remember(r, http.StatusCreated, body)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
