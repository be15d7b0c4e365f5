package aggregate

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"parkride-insights-backend/internal/insights"
	"parkride-insights-backend/internal/model"
)

// Runner drives the periodic reduction: read every facility's history,
// aggregate, publish one insights document. It can also be invoked once by
// an external scheduler via RunOnce.
type Runner struct {
	agg        *Aggregator
	writer     *insights.Writer
	facilities []model.Facility
	interval   time.Duration
	runOnStart bool
	now        func() time.Time
}

// NewRunner creates a Runner. interval is the cadence between runs
// (weekly by default).
func NewRunner(agg *Aggregator, writer *insights.Writer, facilities []model.Facility, interval time.Duration, runOnStart bool) *Runner {
	return &Runner{
		agg:        agg,
		writer:     writer,
		facilities: facilities,
		interval:   interval,
		runOnStart: runOnStart,
		now:        time.Now,
	}
}

// Run executes RunOnce on the configured cadence until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	log.Info().Dur("interval", r.interval).Msg("starting aggregation runner")

	if r.runOnStart {
		if err := r.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("startup aggregation run failed")
		}
	}

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("aggregation runner shutting down")
			return
		case <-timer.C:
			if err := r.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("aggregation run failed")
			}
			timer.Reset(r.interval)
		}
	}
}

// RunOnce aggregates every facility and atomically publishes the insights
// document. Per-facility aggregation failures are logged and that facility
// is left out of the document; only a publish failure makes the whole run
// fail, in which case the previously published document stays in place.
func (r *Runner) RunOnce(ctx context.Context) error {
	started := r.now()
	doc := insights.Document{
		SchemaVersion: insights.SchemaVersion,
		GeneratedAt:   started.UTC(),
		Facilities:    make(map[string]insights.FacilityInsights, len(r.facilities)),
	}

	for _, facility := range r.facilities {
		records, err := r.agg.Aggregate(ctx, facility)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("facility", facility.ID).Msg("skipping facility in this aggregation run")
			continue
		}
		doc.Facilities[facility.ID] = insights.FacilityInsights{
			Name:    facility.Name,
			Spots:   facility.Spots,
			Suburb:  facility.Suburb,
			Buckets: records,
		}
	}

	if err := r.writer.Write(doc); err != nil {
		return err
	}
	log.Info().
		Int("facilities", len(doc.Facilities)).
		Dur("took", r.now().Sub(started)).
		Str("path", r.writer.Path()).
		Msg("insights document published")
	return nil
}
