// Package aggregate reduces the raw sample history into per-facility,
// per-time-of-day occupancy statistics.
package aggregate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"parkride-insights-backend/config"
	"parkride-insights-backend/internal/model"
	"parkride-insights-backend/internal/store"
)

// Aggregator computes insight records from a facility's full sample
// history. It streams samples from the store one at a time; memory use is
// bounded by the per-bucket value accumulators, not by partition count.
type Aggregator struct {
	store        store.SampleStore
	width        time.Duration
	includeEmpty bool
	lowData      int
	nullPercent  bool
	windowStart  int
	windowEnd    int
	loc          *time.Location
}

// New builds an Aggregator from the aggregation and collector settings.
func New(s store.SampleStore, cfg *config.Config, loc *time.Location) *Aggregator {
	return &Aggregator{
		store:        s,
		width:        cfg.Aggregation.BucketWidth,
		includeEmpty: cfg.Aggregation.IncludeEmptyBuckets,
		lowData:      cfg.Aggregation.LowDataThreshold,
		nullPercent:  cfg.Aggregation.PercentFullWhenUnknown == "null",
		windowStart:  cfg.Collector.WindowStartMinutes(),
		windowEnd:    cfg.Collector.WindowEndMinutes(),
		loc:          loc,
	}
}

// bucketAcc accumulates one bucket's samples across the whole history.
type bucketAcc struct {
	values      []int
	unavailable int
}

// Aggregate reads the facility's entire history and returns one
// InsightRecord per bucket, ordered by bucket start. A facility with no
// samples yields an empty slice. Sensor-error samples count toward the
// bucket's unavailable tally but never feed the statistics.
func (a *Aggregator) Aggregate(ctx context.Context, facility model.Facility) ([]model.InsightRecord, error) {
	buckets := make(map[int]*bucketAcc)

	err := a.store.ReadAll(ctx, facility.ID, func(sample model.Sample) error {
		b := BucketOf(sample.Timestamp.In(a.loc), a.width)
		acc := buckets[b]
		if acc == nil {
			acc = &bucketAcc{}
			buckets[b] = acc
		}
		if sample.Unavailable() {
			acc.unavailable++
		} else {
			acc.values = append(acc.values, *sample.Available)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read history for facility %s: %w", facility.ID, err)
	}

	if a.includeEmpty {
		for b := a.windowStart; b < a.windowEnd; b += int(a.width / time.Minute) {
			if _, ok := buckets[b]; !ok {
				buckets[b] = &bucketAcc{}
			}
		}
	}

	starts := make([]int, 0, len(buckets))
	for b := range buckets {
		starts = append(starts, b)
	}
	sort.Ints(starts)

	records := make([]model.InsightRecord, 0, len(starts))
	for _, b := range starts {
		records = append(records, a.record(b, buckets[b], facility.Spots))
	}
	return records, nil
}

func (a *Aggregator) record(start int, acc *bucketAcc, spots int) model.InsightRecord {
	rec := model.InsightRecord{
		BucketStart:         start,
		Label:               Label(start),
		SampleCount:         len(acc.values),
		UnavailableCount:    acc.unavailable,
		EmitNullPercentFull: a.nullPercent,
	}

	total := len(acc.values) + acc.unavailable
	rec.LowData = total <= a.lowData
	if len(acc.values) == 0 {
		rec.NoData = true
		return rec
	}

	sorted := make([]int, len(acc.values))
	copy(sorted, acc.values)
	sort.Ints(sorted)

	sum := 0
	for _, v := range sorted {
		sum += v
	}
	mean := float64(sum) / float64(len(sorted))

	rec.Min = sorted[0]
	rec.Max = sorted[len(sorted)-1]
	rec.Mean = round(mean, 2)
	rec.Median = median(sorted)

	if spots > 0 {
		pf := (float64(spots) - mean) / float64(spots)
		pf = math.Min(1, math.Max(0, pf))
		pf = round(pf, 3)
		rec.PercentFull = &pf
	}
	return rec
}

// median expects values sorted ascending.
func median(values []int) float64 {
	n := len(values)
	mid := n / 2
	if n%2 == 1 {
		return float64(values[mid])
	}
	return float64(values[mid-1]+values[mid]) / 2
}

func round(x float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(x*pow) / pow
}
