package worker

import (
	"context"
	"time"

	"github.com/healthbridge/booking-api/internal/service/schedule"
	"github.com/healthbridge/booking-api/pkg/logger"
)

// HorizonWorker extends the rolling slot horizon for every bookable doctor
// once a day. It runs once at startup so a fresh deployment has slots
// immediately.
type HorizonWorker struct {
	scheduleSvc *schedule.Service
	logger      *logger.Logger
}

func NewHorizonWorker(scheduleSvc *schedule.Service, logger *logger.Logger) *HorizonWorker {
	return &HorizonWorker{
		scheduleSvc: scheduleSvc,
		logger:      logger,
	}
}

func (w *HorizonWorker) Start(ctx context.Context) {
	w.extend(ctx)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.extend(ctx)
		}
	}
}

func (w *HorizonWorker) extend(ctx context.Context) {
	created, err := w.scheduleSvc.ExtendHorizon(ctx)
	if err != nil {
		w.logger.Error(err, "horizon extension failed")
		return
	}
	w.logger.Info("extended slot horizon", "slots_created", created)
}
