// Package collector polls the remote car park API on a fixed cadence
// inside the daily operating window and appends occupancy samples to the
// sample store.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"parkride-insights-backend/config"
	"parkride-insights-backend/internal/model"
	"parkride-insights-backend/internal/notification"
	"parkride-insights-backend/internal/parse"
	"parkride-insights-backend/internal/store"
)

// Service orchestrates the sampling loop.
type Service struct {
	cfg        *config.Config
	store      store.SampleStore
	client     *http.Client
	limiter    *rate.Limiter
	workerPool *notification.WorkerPool
	loc        *time.Location
	now        func() time.Time

	mu         sync.Mutex
	failures   map[string]int
	lastStatus map[string]model.FacilityStatus
}

// NewService creates and initializes the collector. workerPool may be nil
// when push notifications are disabled.
func NewService(cfg *config.Config, s store.SampleStore, workerPool *notification.WorkerPool) (*Service, error) {
	loc, err := cfg.Collector.Location()
	if err != nil {
		return nil, fmt.Errorf("load collector timezone: %w", err)
	}

	return &Service{
		cfg:   cfg,
		store: s,
		client: &http.Client{
			Timeout: cfg.Collector.Request.Timeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(cfg.Collector.RequestsPerSecond), 1),
		workerPool: workerPool,
		loc:        loc,
		now:        time.Now,
		failures:   make(map[string]int),
		lastStatus: make(map[string]model.FacilityStatus),
	}, nil
}

// Run starts the polling loop and blocks until ctx is cancelled. Ticks
// outside the operating window are skipped.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Collector.Enabled {
		log.Info().Msg("collector is disabled, not starting")
		return
	}
	log.Info().
		Dur("interval", s.cfg.Collector.PollInterval).
		Str("window", s.cfg.Collector.WindowStart+"-"+s.cfg.Collector.WindowEnd).
		Int("facilities", len(s.cfg.Facilities)).
		Msg("starting collector")

	if s.workerPool != nil {
		s.workerPool.Start(ctx)
	}

	s.tick(ctx)

	timer := time.NewTimer(s.cfg.Collector.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("collector shutting down")
			return
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.cfg.Collector.PollInterval)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	now := s.now().In(s.loc)
	if !s.cfg.Collector.InWindow(now) {
		log.Debug().Time("now", now).Msg("outside operating window, skipping tick")
		return
	}
	s.CollectOnce(ctx)
}

// CollectOnce performs a single collection round: one request per tracked
// facility, fanned out concurrently so a slow facility never delays the
// others. Window gating is the caller's concern, which keeps a single
// external scheduler invocation deterministic.
func (s *Service) CollectOnce(ctx context.Context) {
	now := s.now().In(s.loc)
	slot := AlignToSlot(now, s.cfg.Collector.PollInterval)
	log.Debug().Time("slot", slot).Msg("executing collection tick")

	var wg sync.WaitGroup
	for _, fc := range s.cfg.Facilities {
		facility := model.Facility{ID: fc.ID, Name: fc.Name, Spots: fc.Spots}
		wg.Add(1)
		go func(f model.Facility) {
			defer wg.Done()
			s.collectFacility(ctx, f, slot)
		}(facility)
	}
	wg.Wait()
}

// AlignToSlot maps an actual invocation time onto the nearest nominal slot
// boundary, so a tick fired at 09:07 still stores a 09:10 sample and
// aggregation buckets stay stable across days with imperfect scheduling.
func AlignToSlot(t time.Time, interval time.Duration) time.Time {
	return t.Round(interval)
}

func (s *Service) collectFacility(ctx context.Context, facility model.Facility, slot time.Time) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	resp, err := s.fetchOccupancy(ctx, facility.ID)
	if err != nil {
		s.recordFailure(facility.ID, err)
		return
	}
	s.clearFailures(facility.ID)

	if facility.Name == "" && resp.FacilityName != "" {
		facility.Name = parse.DisplayName(resp.FacilityName)
	}

	sample := normalize(resp, facility.ID, slot)
	if err := s.store.Append(ctx, sample); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateTimestamp):
			// A second invocation for the same tick is a no-op.
			log.Debug().Str("facility", facility.ID).Time("slot", slot).Msg("slot already sampled")
		case errors.Is(err, store.ErrInvalidSample):
			log.Warn().Err(err).Str("facility", facility.ID).Msg("sample rejected by store")
		default:
			log.Error().Err(err).Str("facility", facility.ID).Msg("failed to append sample")
		}
		return
	}

	s.updateStatus(facility, sample)
}

// fetchOccupancy issues the API request for one facility, retrying
// transient failures with capped exponential backoff inside the tick
// budget.
func (s *Service) fetchOccupancy(ctx context.Context, facilityID string) (*occupancyResponse, error) {
	var resp *occupancyResponse
	op := func() error {
		r, err := s.fetchOnce(ctx, facilityID)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, s.cfg.Collector.Request.MaxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// fetchOnce performs a single request. Any non-200 response or malformed
// body is reported identically to a network failure.
func (s *Service) fetchOnce(ctx context.Context, facilityID string) (*occupancyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Collector.Request.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("facility", facilityID)
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Accept", "application/json")
	for key, value := range s.cfg.Collector.Request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp occupancyResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api response: %w", err)
	}
	return &apiResp, nil
}

// normalize converts an API response into a sample for the given slot. A
// missing or negative occupancy count is the upstream sensor-error
// sentinel; the sample is stored with the explicit unavailable marker, and
// nothing is ever interpolated.
func normalize(resp *occupancyResponse, facilityID string, slot time.Time) model.Sample {
	sample := model.Sample{FacilityID: facilityID, Timestamp: slot}

	occupied := resp.Occupancy.Total.Value()
	if occupied == nil || *occupied < 0 {
		return sample
	}

	var spots int64
	if v := resp.Spots.Value(); v != nil && *v > 0 {
		spots = *v
	}

	available := int(spots - *occupied)
	if available < 0 {
		available = 0
	}
	sample.Available = &available
	return sample
}

// recordFailure counts consecutive failed ticks per facility. At the
// escalation threshold the failure becomes a visible warning, but the
// facility keeps being polled on the normal cadence.
func (s *Service) recordFailure(facilityID string, err error) {
	s.mu.Lock()
	s.failures[facilityID]++
	n := s.failures[facilityID]
	s.mu.Unlock()

	if n >= s.cfg.Collector.EscalateAfterFailures {
		log.Warn().Err(err).Str("facility", facilityID).Int("consecutive_failures", n).
			Msg("facility polling persistently failing")
		return
	}
	log.Debug().Err(err).Str("facility", facilityID).Int("consecutive_failures", n).
		Msg("transient collection failure, will retry next tick")
}

func (s *Service) clearFailures(facilityID string) {
	s.mu.Lock()
	delete(s.failures, facilityID)
	s.mu.Unlock()
}

// ConsecutiveFailures reports the current failure streak for a facility.
func (s *Service) ConsecutiveFailures(facilityID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[facilityID]
}

// updateStatus classifies the new sample and dispatches notification jobs
// on meaningful transitions: a facility filling up, or opening up again
// after having been (almost) full.
func (s *Service) updateStatus(facility model.Facility, sample model.Sample) {
	newStatus := model.ClassifyStatus(sample.Available, facility.Spots)

	s.mu.Lock()
	oldStatus, seen := s.lastStatus[facility.ID]
	s.lastStatus[facility.ID] = newStatus
	s.mu.Unlock()

	if !seen || oldStatus == newStatus {
		return
	}

	notify := false
	switch {
	case newStatus == model.StatusFull:
		notify = true
	case newStatus == model.StatusAvailable && (oldStatus == model.StatusFull || oldStatus == model.StatusAlmostFull):
		notify = true
	}
	if notify && s.workerPool != nil {
		s.workerPool.Dispatch(notification.Event{
			FacilityID:   facility.ID,
			FacilityName: facility.Name,
			Status:       newStatus,
		})
	}
}

// LastStatus returns the most recently observed status for a facility, or
// StatusUnknown if it has not been polled successfully yet.
func (s *Service) LastStatus(facilityID string) model.FacilityStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.lastStatus[facilityID]; ok {
		return st
	}
	return model.StatusUnknown
}
