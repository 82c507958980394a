package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/flight-reservations/internal/adapters/crdb"
	"github.com/robertarktes/flight-reservations/internal/config"
	"github.com/robertarktes/flight-reservations/internal/observability"
)

// The reconciler never repairs anything: booked seats are written only
// inside engine transactions, so drift can only mean a bug or manual
// data surgery. It watches and reports.

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	reconciler := NewReconciler(repo, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reconciler.Run(ctx, time.Minute)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown reconciler")
}

type Reconciler struct {
	repo   *crdb.Repository
	logger observability.Logger
}

func NewReconciler(repo *crdb.Repository, logger observability.Logger) *Reconciler {
	return &Reconciler{repo: repo, logger: logger}
}

func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.check(ctx)
		}
	}
}

func (r *Reconciler) check(ctx context.Context) {
	drifts, err := r.repo.DriftingFlights(ctx)
	if err != nil {
		r.logger.WithError(err).Error("failed to audit seat counts")
		return
	}
	observability.SeatDrift.Set(float64(len(drifts)))
	for _, d := range drifts {
		r.logger.
			WithField("flight_id", d.FlightID).
			WithField("booked_seats", d.BookedSeats).
			WithField("roster_seats", d.RosterSeats).
			Error("booked seats disagree with active roster sum")
	}
}
