package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/flight-reservations/internal/domain"
	"github.com/robertarktes/flight-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger keeps a trail of committed engine mutations. Best effort:
// the engine logs failures and moves on.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditEntry struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    uuid.UUID `bson:"user_id"`
	Role      string    `bson:"role"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) Record(ctx context.Context, action string, principal domain.Principal, r *domain.Reservation) error {
	entry := AuditEntry{
		ID:        uuid.New(),
		Action:    action,
		UserID:    principal.UserID,
		Role:      string(principal.Role),
		Timestamp: time.Now().UTC(),
	}
	if r != nil {
		entry.Data = bson.M{
			"reservation_id":  r.ID,
			"flight_id":       r.FlightID,
			"status":          string(r.Status),
			"fare_class":      string(r.FareClass),
			"passenger_count": r.PassengerCount(),
			"total_price":     r.TotalPrice.String(),
		}
	}
	_, err := a.coll.InsertOne(ctx, entry)
	if err != nil {
		a.logger.WithError(err).Error("failed to insert audit entry")
		return err
	}
	return nil
}
