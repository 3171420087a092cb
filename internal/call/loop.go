package call

import (
	"context"
	"time"

	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/phone"
)

// Loop pumps the two redundant status sources into the reconciler: the
// push event channel, and a fixed-interval poll that guarantees progress
// even if the push channel silently stalls.
type Loop struct {
	logger   *logger.Logger
	link     phone.Link
	rec      *Reconciler
	interval time.Duration
}

func NewLoop(l *logger.Logger, link phone.Link, rec *Reconciler, interval time.Duration) *Loop {
	return &Loop{
		logger:   l.WithTag("phone-loop"),
		link:     link,
		rec:      rec,
		interval: interval,
	}
}

// Run blocks until the context is cancelled. Snapshots are applied in
// arrival order; ordering between push and poll is resolved by the
// receipt sequence inside the reconciler.
func (lp *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(lp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lp.logger.Infof("Phone loop stopped")
			return

		case snap, ok := <-lp.link.Snapshots():
			if !ok {
				lp.logger.Warnf("Snapshot channel closed")
				return
			}
			lp.rec.Apply(snap)

		case <-ticker.C:
			lp.poll(ctx)
		}
	}
}

func (lp *Loop) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, lp.interval)
	defer cancel()

	snap, err := lp.link.Poll(pollCtx)
	if err != nil {
		// Indicator only; never clears the displayed call.
		lp.rec.ReportPollFailure(err)
		return
	}
	lp.rec.Apply(snap)
}
