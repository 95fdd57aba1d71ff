package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/kelseyhightower/envconfig"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/healthbridge/booking-api/internal/model"
	"github.com/healthbridge/booking-api/internal/repository/postgres"
	bookingService "github.com/healthbridge/booking-api/internal/service/booking"
	janitorService "github.com/healthbridge/booking-api/internal/service/janitor"
	"github.com/healthbridge/booking-api/internal/worker"
	"github.com/healthbridge/booking-api/pkg/logger"
	"github.com/healthbridge/booking-api/pkg/messaging"
	"github.com/healthbridge/booking-api/pkg/messaging/redis"
	"github.com/healthbridge/booking-api/pkg/metrics"
)

var (
	paymentEventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_payment_events_processed_total",
		Help: "Payment gateway events applied to appointments",
	}, []string{"status"})
	paymentEventsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_payment_events_failed_total",
		Help: "Payment gateway events that could not be applied",
	})
)

var errMissingAppointment = errors.New("payment event missing appointment id")

// WorkerConfig is populated from the environment; the janitor runs in
// containers where a config file is not mounted.
type WorkerConfig struct {
	DatabaseURL     string        `envconfig:"DATABASE_URL" required:"true"`
	RedisURL        string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	JanitorInterval time.Duration `envconfig:"JANITOR_INTERVAL" default:"1m"`
	PaymentTimeout  time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"30m"`
	HealthPort      string        `envconfig:"HEALTH_PORT" default:":8081"`
}

func main() {
	var cfg WorkerConfig
	if err := envconfig.Process("booking", &cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load worker config")
	}

	appLogger := logger.NewLogger(nil)

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		appLogger.ZL.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{URL: cfg.RedisURL}, &appLogger.ZL)
	if err != nil {
		appLogger.ZL.Fatal().Err(err).Msg("failed to create Redis broker")
	}
	defer broker.Close()

	m := metrics.New("booking_worker")

	appointmentRepo := postgres.NewAppointmentRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)
	slotRepo := postgres.NewSlotRepository(db)
	doctorRepo := postgres.NewDoctorRepository(db)

	janitorSvc := janitorService.NewService(appointmentRepo, paymentRepo, slotRepo, broker, appLogger, m, cfg.PaymentTimeout)
	bookingSvc := bookingService.NewService(nil, appointmentRepo, paymentRepo, slotRepo, doctorRepo, broker, appLogger, m)

	setupHealthCheck(cfg.HealthPort, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.ZL.Info().Msg("shutting down...")
		cancel()
	}()

	go consumePaymentEvents(ctx, broker, bookingSvc, appLogger)

	janitorWorker := worker.NewJanitorWorker(janitorSvc, cfg.JanitorInterval, appLogger)
	janitorWorker.Start(ctx)
}

// consumePaymentEvents applies gateway callbacks published on the payment
// channel. Malformed or stale events are counted and dropped; the stream
// must keep moving.
func consumePaymentEvents(ctx context.Context, broker messaging.Broker, bookingSvc *bookingService.Service, appLogger *logger.Logger) {
	msgs, err := broker.Subscribe(ctx, messaging.PaymentEventsChannel)
	if err != nil {
		appLogger.ZL.Error().Err(err).Msg("failed to subscribe to payment events")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			var evt model.PaymentEvent
			if err := json.Unmarshal(msg, &evt); err != nil {
				paymentEventsFailed.Inc()
				appLogger.ZL.Warn().Err(err).Msg("malformed payment event")
				continue
			}

			if err := applyPaymentEvent(ctx, bookingSvc, &evt); err != nil {
				paymentEventsFailed.Inc()
				appLogger.ZL.Error().Err(err).Str("appointment_id", evt.AppointmentID.String()).Msg("failed to apply payment event")
				continue
			}
			paymentEventsProcessed.WithLabelValues(evt.Status).Inc()
		}
	}
}

func applyPaymentEvent(ctx context.Context, bookingSvc *bookingService.Service, evt *model.PaymentEvent) error {
	if evt.AppointmentID == uuid.Nil {
		return errMissingAppointment
	}
	switch evt.Status {
	case "succeeded":
		return bookingSvc.ConfirmPayment(ctx, evt.AppointmentID)
	case "failed":
		return bookingSvc.FailPayment(ctx, evt.AppointmentID)
	default:
		return fmt.Errorf("unknown payment status %q", evt.Status)
	}
}

func setupHealthCheck(addr string, appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			appLogger.ZL.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
}
