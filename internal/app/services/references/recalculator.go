package references

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/wayfarernet/community_layer/internal/app/storage"
	"github.com/wayfarernet/community_layer/internal/app/system"
	"github.com/wayfarernet/community_layer/pkg/logger"
)

// Recalculator refreshes every profile's trust score on a schedule so cached
// scores converge even when write-path refreshes are missed.
type Recalculator struct {
	profiles storage.ProfileStore
	refs     *Service
	schedule string
	cron     *cron.Cron
	log      *logger.Logger

	// OnRecompute, when set, is invoked after each full pass with the number
	// of profiles refreshed.
	OnRecompute func(count int)
}

var _ system.Service = (*Recalculator)(nil)

// NewRecalculator creates a recalculator. An empty schedule defaults to a
// nightly run.
func NewRecalculator(profiles storage.ProfileStore, refs *Service, schedule string, log *logger.Logger) *Recalculator {
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	if log == nil {
		log = logger.NewDefault("trust-recalculator")
	}
	return &Recalculator{
		profiles: profiles,
		refs:     refs,
		schedule: schedule,
		log:      log,
	}
}

// Name implements system.Service.
func (r *Recalculator) Name() string { return "trust-recalculator" }

// Schedule returns the active cron expression.
func (r *Recalculator) Schedule() string { return r.schedule }

// Start schedules the recompute job.
func (r *Recalculator) Start(ctx context.Context) error {
	_ = ctx
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.schedule, func() {
		r.RecomputeAll(context.Background())
	}); err != nil {
		return err
	}
	r.cron.Start()
	r.log.WithField("schedule", r.schedule).Info("trust recalculator started")
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (r *Recalculator) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	r.log.Info("trust recalculator stopped")
	return nil
}

// RecomputeAll refreshes the trust score of every profile.
func (r *Recalculator) RecomputeAll(ctx context.Context) {
	all, err := r.profiles.ListProfiles(ctx)
	if err != nil {
		r.log.WithError(err).Error("trust recompute: list profiles failed")
		return
	}

	count := 0
	for _, p := range all {
		if _, err := r.refs.ComputeTrustScore(ctx, p.ID); err != nil {
			r.log.WithError(err).
				WithField("profile_id", p.ID).
				Warn("trust recompute failed")
			continue
		}
		count++
	}
	r.log.WithField("profiles", count).Info("trust scores recomputed")
	if r.OnRecompute != nil {
		r.OnRecompute(count)
	}
}
