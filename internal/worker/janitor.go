package worker

import (
	"context"
	"time"

	"github.com/healthbridge/booking-api/internal/service/janitor"
	"github.com/healthbridge/booking-api/pkg/logger"
)

// JanitorWorker runs the three reconciliation sweeps on a fixed cadence. A
// failed sweep is logged and retried on the next tick; nothing here is fatal.
type JanitorWorker struct {
	janitorSvc *janitor.Service
	interval   time.Duration
	logger     *logger.Logger
}

func NewJanitorWorker(janitorSvc *janitor.Service, interval time.Duration, logger *logger.Logger) *JanitorWorker {
	return &JanitorWorker{
		janitorSvc: janitorSvc,
		interval:   interval,
		logger:     logger,
	}
}

func (w *JanitorWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("janitor started", "interval", w.interval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("janitor shutting down")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *JanitorWorker) sweep(ctx context.Context) {
	if _, err := w.janitorSvc.RunPaymentExpiry(ctx); err != nil {
		w.logger.Error(err, "payment expiry sweep failed")
	}
	if _, err := w.janitorSvc.ReleaseExpiredLocks(ctx); err != nil {
		w.logger.Error(err, "lock reclamation sweep failed")
	}
	if _, err := w.janitorSvc.MarkNoShows(ctx); err != nil {
		w.logger.Error(err, "no-show sweep failed")
	}
}
