package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/flight-reservations/internal/adapters/crdb"
	"github.com/robertarktes/flight-reservations/internal/adapters/rabbit"
	"github.com/robertarktes/flight-reservations/internal/observability"
)

// Publisher drains NEW outbox records to rabbit. At-least-once: a crash
// between publish and mark may re-send, so consumers dedupe on the
// message id.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
	batchSize int
	interval  time.Duration
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{
		repo:      repo,
		rabbitPub: rabbitPub,
		logger:    logger,
		batchSize: 50,
		interval:  5 * time.Second,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	records, err := p.repo.UnpublishedEvents(ctx, p.batchSize)
	if err != nil {
		p.logger.WithError(err).Error("failed to load outbox batch")
		return
	}
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.WithError(err).WithField("event_id", rec.ID).Error("publish failed")
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now().UTC()); err != nil {
			p.logger.WithError(err).WithField("event_id", rec.ID).Error("mark published failed")
		}
	}

	if age, err := p.repo.OldestUnpublishedAge(ctx); err == nil {
		observability.OutboxLag.Set(age.Seconds())
	}
}
