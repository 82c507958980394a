package domain

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// Passenger is a value object owned by its reservation. The passport
// number is unique within the reservation, not globally.
type Passenger struct {
	Name           string `json:"name"`
	PassportNumber string `json:"passport_number"`
}

func (p Passenger) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.Wrap(ErrInvalidPassengerData, "name is required")
	}
	if strings.TrimSpace(p.PassportNumber) == "" {
		return errors.Wrap(ErrInvalidPassengerData, "passport number is required")
	}
	return nil
}

type Reservation struct {
	ID         uuid.UUID
	FlightID   uuid.UUID
	UserID     uuid.UUID
	Passengers []Passenger
	FareClass  FareClass
	TotalPrice decimal.Decimal
	Status     ReservationStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PassengerCount is derived from the roster. It is never stored or
// supplied separately, so the two cannot drift apart.
func (r *Reservation) PassengerCount() int {
	return len(r.Passengers)
}

func (r *Reservation) Cancelled() bool {
	return r.Status == ReservationStatusCancelled
}

// PassengerIndex returns the roster position of the passenger with the
// given passport number, or -1.
func (r *Reservation) PassengerIndex(passportNumber string) int {
	for i, p := range r.Passengers {
		if p.PassportNumber == passportNumber {
			return i
		}
	}
	return -1
}

// ValidateRoster checks every passenger and rejects duplicate passport
// numbers within the roster.
func ValidateRoster(passengers []Passenger) error {
	if len(passengers) == 0 {
		return errors.Wrap(ErrInvalidPassengerData, "at least one passenger is required")
	}
	seen := make(map[string]struct{}, len(passengers))
	for _, p := range passengers {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := seen[p.PassportNumber]; dup {
			return errors.Wrapf(ErrInvalidPassengerData, "duplicate passport number %s", p.PassportNumber)
		}
		seen[p.PassportNumber] = struct{}{}
	}
	return nil
}
