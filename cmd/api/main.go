package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/healthbridge/booking-api/internal/config"
	"github.com/healthbridge/booking-api/internal/handler"
	bookingHandler "github.com/healthbridge/booking-api/internal/handler/booking"
	maintenanceHandler "github.com/healthbridge/booking-api/internal/handler/maintenance"
	slotHandler "github.com/healthbridge/booking-api/internal/handler/slot"
	"github.com/healthbridge/booking-api/internal/middleware"
	"github.com/healthbridge/booking-api/internal/repository/postgres"
	"github.com/healthbridge/booking-api/internal/router"
	availabilityService "github.com/healthbridge/booking-api/internal/service/availability"
	bookingService "github.com/healthbridge/booking-api/internal/service/booking"
	janitorService "github.com/healthbridge/booking-api/internal/service/janitor"
	scheduleService "github.com/healthbridge/booking-api/internal/service/schedule"
	"github.com/healthbridge/booking-api/internal/worker"
	"github.com/healthbridge/booking-api/pkg/auth"
	"github.com/healthbridge/booking-api/pkg/logger"
	"github.com/healthbridge/booking-api/pkg/messaging/redis"
	"github.com/healthbridge/booking-api/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis broker for booking lifecycle events
	broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &appLogger.ZL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Redis broker")
	}
	defer broker.Close()

	m := metrics.New("booking_api")

	// Initialize repositories
	scheduleRepo := postgres.NewScheduleRepository(db)
	slotRepo := postgres.NewSlotRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)
	doctorRepo := postgres.NewDoctorRepository(db)

	// Initialize services
	scheduleSvc := scheduleService.NewService(scheduleRepo, slotRepo, doctorRepo, appLogger, m, cfg.Booking.HorizonDays)
	availabilitySvc := availabilityService.NewService(appointmentRepo, slotRepo, doctorRepo, appLogger, m, cfg.Booking.PaymentTimeout, cfg.Booking.LockTTL)
	bookingSvc := bookingService.NewService(availabilitySvc, appointmentRepo, paymentRepo, slotRepo, doctorRepo, broker, appLogger, m)
	janitorSvc := janitorService.NewService(appointmentRepo, paymentRepo, slotRepo, broker, appLogger, m, cfg.Booking.PaymentTimeout)

	// Initialize middleware
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret)
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)

	// Initialize handlers
	h := handler.NewHandler(db)
	slotH := slotHandler.NewHandler(availabilitySvc, scheduleSvc, cfg.Booking.SlotCacheTTL)
	bookingH := bookingHandler.NewHandler(bookingSvc)
	maintenanceH := maintenanceHandler.NewHandler(janitorSvc)

	// Setup router
	r := router.NewRouter(
		authMiddleware,
		slotH,
		bookingH,
		maintenanceH,
		h,
		appLogger,
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        cfg.RateLimit.RequestsPerSecond,
			RateBurst:        cfg.RateLimit.Burst,
			CORSConfig:       middleware.DefaultCORSConfig(),
			MetricsPrefix:    "booking_api",
		},
	)
	r.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Keep the slot horizon rolling while the API runs
	horizonWorker := worker.NewHorizonWorker(scheduleSvc, appLogger)
	go horizonWorker.Start(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.ZL.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.ZL.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLogger.ZL.Info().Msg("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.ZL.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
}
