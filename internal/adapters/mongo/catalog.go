package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/flight-reservations/internal/domain"
	"github.com/robertarktes/flight-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CatalogRepository holds read-mostly flight reference data: route,
// schedule and promotions. Seat decisions never consult it; those live
// in the inventory store.
type CatalogRepository struct {
	flights    *mongo.Collection
	promotions *mongo.Collection
	logger     observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		flights:    db.Collection("flights"),
		promotions: db.Collection("promotions"),
		logger:     logger,
	}
}

type FlightDoc struct {
	ID        uuid.UUID          `bson:"_id" json:"id"`
	Number    string             `bson:"number" json:"number"`
	Departure string             `bson:"departure" json:"departure"`
	Arrival   string             `bson:"arrival" json:"arrival"`
	Schedule  time.Time          `bson:"schedule" json:"schedule"`
	Plane     string             `bson:"plane,omitempty" json:"plane,omitempty"`
	Crew      string             `bson:"crew,omitempty" json:"crew,omitempty"`
	Company   string             `bson:"company" json:"company"`
	Capacity  int                `bson:"capacity" json:"capacity"`
	Fares     map[string]float64 `bson:"fares" json:"fares"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

type PromotionDoc struct {
	ID          uuid.UUID          `bson:"_id" json:"id"`
	Destination string             `bson:"destination" json:"destination"`
	Fares       map[string]float64 `bson:"fares" json:"fares"`
	StartsAt    time.Time          `bson:"starts_at" json:"starts_at"`
	EndsAt      time.Time          `bson:"ends_at" json:"ends_at"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}

func (c *CatalogRepository) GetFlight(ctx context.Context, id uuid.UUID) (*FlightDoc, error) {
	var doc FlightDoc
	err := c.flights.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrFlightNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *CatalogRepository) CreateFlight(ctx context.Context, doc FlightDoc) error {
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt
	_, err := c.flights.InsertOne(ctx, doc)
	if err != nil {
		c.logger.WithError(err).Error("failed to create catalog flight")
		return err
	}
	return nil
}

func (c *CatalogRepository) UpdateFares(ctx context.Context, id uuid.UUID, fares map[string]float64) error {
	_, err := c.flights.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"fares": fares, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		c.logger.WithError(err).Error("failed to update catalog fares")
	}
	return err
}

func (c *CatalogRepository) CreatePromotion(ctx context.Context, doc PromotionDoc) error {
	doc.CreatedAt = time.Now().UTC()
	_, err := c.promotions.InsertOne(ctx, doc)
	if err != nil {
		c.logger.WithError(err).Error("failed to create promotion")
	}
	return err
}

// ActivePromotion returns the promotion for a destination whose window
// contains now, or nil when none applies.
func (c *CatalogRepository) ActivePromotion(ctx context.Context, destination string, now time.Time) (*PromotionDoc, error) {
	var doc PromotionDoc
	err := c.promotions.FindOne(ctx, bson.M{
		"destination": destination,
		"starts_at":   bson.M{"$lte": now},
		"ends_at":     bson.M{"$gte": now},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
