package scanrunner

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweep returns tasks abandoned in processing for longer than StaleAfter to
// pending, or fails them once they have used up MaxAttempts claims.
func (r *Runner) Sweep(ctx context.Context) (requeued, failed int, err error) {
	cutoff := r.now().Add(-r.opts.StaleAfter)
	requeued, failed, err = r.deps.Store.RequeueStale(ctx, cutoff, r.opts.MaxAttempts)
	if err != nil {
		return 0, 0, err
	}
	if requeued > 0 || failed > 0 {
		r.log.WithFields(logrus.Fields{"requeued": requeued, "failed": failed}).Warn("recovered stale tasks")
	}
	return requeued, failed, nil
}

func (r *Runner) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()
	for {
		if _, _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.log.WithError(err).Error("stale task sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
