package job

import (
	"context"
	"time"

	"kitarcycle/internal/config"

	log "github.com/sirupsen/logrus"
)

// TierReconciler is implemented by *service.TierService.
type TierReconciler interface {
	ReconcileAll(ctx context.Context, batch int) (int, error)
}

// TierReconcileJob periodically re-derives every account's tier, picking up
// boundary edits made through the tier-level endpoints.
type TierReconcileJob struct {
	tiers     TierReconciler
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewTierReconcileJob(tiers TierReconciler, cfg *config.Config) *TierReconcileJob {
	interval := cfg.Business.TierReconcileInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &TierReconcileJob{
		tiers:     tiers,
		stopCh:    make(chan struct{}),
		interval:  interval,
		batchSize: 200,
	}
}

func (j *TierReconcileJob) Start(ctx context.Context) {
	log.WithField("interval", j.interval).Info("[TierReconcileJob] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("[TierReconcileJob] context done, exiting")
			return
		case <-j.stopCh:
			log.Info("[TierReconcileJob] stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *TierReconcileJob) Stop() {
	close(j.stopCh)
}

func (j *TierReconcileJob) runOnce(ctx context.Context) {
	changed, err := j.tiers.ReconcileAll(ctx, j.batchSize)
	if err != nil {
		log.WithError(err).Error("[TierReconcileJob] reconcile failed")
		return
	}
	if changed > 0 {
		log.WithField("changed", changed).Info("[TierReconcileJob] tiers updated")
	}
}
