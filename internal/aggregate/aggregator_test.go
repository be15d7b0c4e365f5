package aggregate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkride-insights-backend/config"
	"parkride-insights-backend/internal/insights"
	"parkride-insights-backend/internal/model"
	"parkride-insights-backend/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Collector.Timezone = "UTC"
	require.NoError(t, cfg.ApplyDefaults())
	return cfg
}

func newTestStore(t *testing.T) store.SampleStore {
	t.Helper()
	s, err := store.NewCSVStore(t.TempDir(), store.RolloverWeek)
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, s store.SampleStore, facilityID string, samples ...model.Sample) {
	t.Helper()
	for i := range samples {
		samples[i].FacilityID = facilityID
		require.NoError(t, s.Append(context.Background(), samples[i]))
	}
}

func at(day, hour, min int) time.Time {
	return time.Date(2026, 8, day, hour, min, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func TestAggregateBucketsByTimeOfDay(t *testing.T) {
	cfg := testConfig(t)
	s := newTestStore(t)
	seed(t, s, "7",
		model.Sample{Timestamp: at(24, 8, 0), Available: intPtr(20)},
		model.Sample{Timestamp: at(24, 8, 5), Available: intPtr(18)},
		model.Sample{Timestamp: at(24, 8, 10), Available: intPtr(22)},
		model.Sample{Timestamp: at(25, 8, 2), Available: nil},
	)

	agg := New(s, cfg, time.UTC)
	records, err := agg.Aggregate(context.Background(), model.Facility{ID: "7", Spots: 100})
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, 480, first.BucketStart)
	assert.Equal(t, "8:00 AM", first.Label)
	assert.Equal(t, 2, first.SampleCount)
	assert.Equal(t, 1, first.UnavailableCount)
	assert.Equal(t, 19.0, first.Mean)
	assert.Equal(t, 19.0, first.Median)
	assert.Equal(t, 18, first.Min)
	assert.Equal(t, 20, first.Max)
	assert.True(t, first.LowData)
	require.NotNil(t, first.PercentFull)
	assert.Equal(t, 0.81, *first.PercentFull)

	second := records[1]
	assert.Equal(t, 490, second.BucketStart)
	assert.Equal(t, 1, second.SampleCount)
	assert.Equal(t, 22.0, second.Mean)
	require.NotNil(t, second.PercentFull)
	assert.Equal(t, 0.78, *second.PercentFull)
}

func TestAggregateMeanRounding(t *testing.T) {
	cfg := testConfig(t)
	s := newTestStore(t)
	seed(t, s, "9",
		model.Sample{Timestamp: at(24, 9, 0), Available: intPtr(10)},
		model.Sample{Timestamp: at(25, 9, 0), Available: intPtr(10)},
		model.Sample{Timestamp: at(26, 9, 0), Available: intPtr(11)},
	)

	agg := New(s, cfg, time.UTC)
	records, err := agg.Aggregate(context.Background(), model.Facility{ID: "9"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, 10.33, records[0].Mean)
	assert.Equal(t, 10.0, records[0].Median)
}

func TestAggregateMedianEvenCount(t *testing.T) {
	cfg := testConfig(t)
	s := newTestStore(t)
	seed(t, s, "9",
		model.Sample{Timestamp: at(24, 9, 0), Available: intPtr(4)},
		model.Sample{Timestamp: at(25, 9, 0), Available: intPtr(10)},
		model.Sample{Timestamp: at(26, 9, 0), Available: intPtr(7)},
		model.Sample{Timestamp: at(27, 9, 0), Available: intPtr(1)},
	)

	agg := New(s, cfg, time.UTC)
	records, err := agg.Aggregate(context.Background(), model.Facility{ID: "9"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, 5.5, rec.Median)
	assert.Equal(t, 1, rec.Min)
	assert.Equal(t, 10, rec.Max)
	assert.LessOrEqual(t, float64(rec.Min), rec.Median)
	assert.LessOrEqual(t, rec.Median, float64(rec.Max))
}

func TestAggregateEmptyHistory(t *testing.T) {
	cfg := testConfig(t)
	s := newTestStore(t)

	agg := New(s, cfg, time.UTC)
	records, err := agg.Aggregate(context.Background(), model.Facility{ID: "404"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAggregateUnavailableOnlyBucket(t *testing.T) {
	cfg := testConfig(t)
	s := newTestStore(t)
	seed(t, s, "9",
		model.Sample{Timestamp: at(24, 7, 0), Available: nil},
		model.Sample{Timestamp: at(25, 7, 0), Available: nil},
	)

	agg := New(s, cfg, time.UTC)
	records, err := agg.Aggregate(context.Background(), model.Facility{ID: "9", Spots: 50})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, 0, rec.SampleCount)
	assert.Equal(t, 2, rec.UnavailableCount)
	assert.True(t, rec.NoData)
	assert.True(t, rec.LowData)
	assert.Nil(t, rec.PercentFull)
}

func TestAggregateIncludeEmptyBuckets(t *testing.T) {
	cfg := testConfig(t)
	cfg.Aggregation.IncludeEmptyBuckets = true
	s := newTestStore(t)
	seed(t, s, "7",
		model.Sample{Timestamp: at(24, 8, 0), Available: intPtr(5)},
	)

	agg := New(s, cfg, time.UTC)
	records, err := agg.Aggregate(context.Background(), model.Facility{ID: "7"})
	require.NoError(t, err)

	// 05:00-22:00 window at 10 minute width.
	require.Len(t, records, 102)
	assert.Equal(t, 300, records[0].BucketStart)
	assert.Equal(t, 1310, records[len(records)-1].BucketStart)
	assert.True(t, records[0].NoData)
	assert.Equal(t, 1, records[18].SampleCount) // 08:00
}

func TestAggregatePercentFullPolicy(t *testing.T) {
	cfg := testConfig(t)
	s := newTestStore(t)
	seed(t, s, "7",
		model.Sample{Timestamp: at(24, 8, 0), Available: intPtr(5)},
	)

	t.Run("omit drops the key for unknown capacity", func(t *testing.T) {
		agg := New(s, cfg, time.UTC)
		records, err := agg.Aggregate(context.Background(), model.Facility{ID: "7", Spots: 0})
		require.NoError(t, err)
		require.Len(t, records, 1)

		data, err := json.Marshal(records[0])
		require.NoError(t, err)
		assert.NotContains(t, string(data), "percent_full")
	})

	t.Run("null keeps the key explicit", func(t *testing.T) {
		cfg.Aggregation.PercentFullWhenUnknown = "null"
		agg := New(s, cfg, time.UTC)
		records, err := agg.Aggregate(context.Background(), model.Facility{ID: "7", Spots: 0})
		require.NoError(t, err)
		require.Len(t, records, 1)

		data, err := json.Marshal(records[0])
		require.NoError(t, err)
		assert.Contains(t, string(data), `"percent_full":null`)
	})
}

func TestAggregatePercentFullClamped(t *testing.T) {
	cfg := testConfig(t)
	s := newTestStore(t)
	// More spaces reported than capacity; percent full must not go negative.
	seed(t, s, "7",
		model.Sample{Timestamp: at(24, 8, 0), Available: intPtr(60)},
	)

	agg := New(s, cfg, time.UTC)
	records, err := agg.Aggregate(context.Background(), model.Facility{ID: "7", Spots: 50})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].PercentFull)
	assert.Equal(t, 0.0, *records[0].PercentFull)
}

func TestAggregateDeterministic(t *testing.T) {
	cfg := testConfig(t)
	s := newTestStore(t)
	seed(t, s, "7",
		model.Sample{Timestamp: at(24, 8, 0), Available: intPtr(20)},
		model.Sample{Timestamp: at(24, 8, 10), Available: intPtr(15)},
		model.Sample{Timestamp: at(25, 8, 0), Available: nil},
		model.Sample{Timestamp: at(25, 8, 10), Available: intPtr(17)},
	)

	agg := New(s, cfg, time.UTC)
	facility := model.Facility{ID: "7", Spots: 40}

	first, err := agg.Aggregate(context.Background(), facility)
	require.NoError(t, err)
	second, err := agg.Aggregate(context.Background(), facility)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunnerPublishesDeterministicDocument(t *testing.T) {
	cfg := testConfig(t)
	s := newTestStore(t)
	seed(t, s, "7",
		model.Sample{Timestamp: at(24, 8, 0), Available: intPtr(20)},
	)
	seed(t, s, "9",
		model.Sample{Timestamp: at(24, 8, 0), Available: intPtr(100)},
	)

	path := filepath.Join(t.TempDir(), "insights.json")
	writer := insights.NewWriter(path)
	agg := New(s, cfg, time.UTC)
	facilities := []model.Facility{
		{ID: "7", Name: "Kiama", Spots: 42},
		{ID: "9", Name: "Revesby", Spots: 937},
	}

	runner := NewRunner(agg, writer, facilities, cfg.Aggregation.Interval, false)
	runner.now = func() time.Time { return at(31, 3, 0) }

	require.NoError(t, runner.RunOnce(context.Background()))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, runner.RunOnce(context.Background()))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second, "same input must publish byte-identical documents")

	doc, err := writer.Read()
	require.NoError(t, err)
	assert.Equal(t, insights.SchemaVersion, doc.SchemaVersion)
	assert.Equal(t, at(31, 3, 0).UTC(), doc.GeneratedAt.UTC())
	require.Contains(t, doc.Facilities, "7")
	require.Contains(t, doc.Facilities, "9")
	assert.Equal(t, "Kiama", doc.Facilities["7"].Name)
	require.Len(t, doc.Facilities["7"].Buckets, 1)
}
