package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"

	"parkride-insights-backend/internal/model"
)

// SampleStore is the append-only time-series persistence for occupancy
// samples, one independent series per facility.
type SampleStore interface {
	// Append stores one sample. It fails with ErrDuplicateTimestamp when a
	// sample already exists at that timestamp and with ErrInvalidSample for
	// out-of-bounds values. The row write is all-or-nothing.
	Append(ctx context.Context, sample model.Sample) error
	// ReadAll streams every stored sample for a facility in timestamp
	// order, across all partitions. Malformed rows and unreadable
	// partitions are skipped with a logged warning. A non-nil error from
	// fn aborts the read and is returned.
	ReadAll(ctx context.Context, facilityID string, fn func(model.Sample) error) error
	// Last returns the most recently appended sample for a facility, if
	// any.
	Last(ctx context.Context, facilityID string) (model.Sample, bool, error)
}

// Rollover period for partition files.
const (
	RolloverWeek = "week"
	RolloverDay  = "day"
)

// Sanity bounds for sample timestamps.
var minSampleTime = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

const maxFutureSkew = 48 * time.Hour

// CSVStore persists samples as one CSV file per facility per rollover
// period under dataDir/<facility_id>/. Partition file names embed the
// facility and the period so listing and sorting them recovers timestamp
// order without any index structure.
type CSVStore struct {
	dir      string
	rollover string

	mu         sync.Mutex
	last       map[string]time.Time
	lastLoaded map[string]bool
}

// NewCSVStore creates the store rooted at dir. rollover must be
// RolloverWeek or RolloverDay and must not change for an existing data
// directory, since partition ordering relies on a single naming scheme.
func NewCSVStore(dir string, rollover string) (*CSVStore, error) {
	switch rollover {
	case RolloverWeek, RolloverDay:
	default:
		return nil, fmt.Errorf("unknown rollover period %q", rollover)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &CSVStore{
		dir:        dir,
		rollover:   rollover,
		last:       make(map[string]time.Time),
		lastLoaded: make(map[string]bool),
	}, nil
}

// Append implements SampleStore. The header (for a fresh partition) and the
// row go out in a single write on an O_APPEND descriptor, so a concurrent
// reader never observes a half-written sample.
func (s *CSVStore) Append(ctx context.Context, sample model.Sample) error {
	if err := validateSample(sample); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.lastTimestampLocked(sample.FacilityID)
	if err != nil {
		return err
	}
	if !last.IsZero() {
		if sample.Timestamp.Equal(last) {
			return fmt.Errorf("%w: facility %s at %s", ErrDuplicateTimestamp,
				sample.FacilityID, sample.Timestamp.Format(time.RFC3339))
		}
		if sample.Timestamp.Before(last) {
			return fmt.Errorf("%w: timestamp %s precedes last stored sample %s",
				ErrInvalidSample, sample.Timestamp.Format(time.RFC3339), last.Format(time.RFC3339))
		}
	}

	facilityDir := filepath.Join(s.dir, sample.FacilityID)
	if err := os.MkdirAll(facilityDir, 0o755); err != nil {
		return fmt.Errorf("create facility dir: %w", err)
	}
	path := filepath.Join(facilityDir, s.partitionFile(sample.FacilityID, sample.Timestamp))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open partition %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat partition %s: %w", path, err)
	}

	var buf bytes.Buffer
	if st.Size() == 0 {
		header, err := gocsv.MarshalString([]*sampleRow{})
		if err != nil {
			return fmt.Errorf("marshal csv header: %w", err)
		}
		buf.WriteString(header)
	}
	if err := gocsv.MarshalWithoutHeaders([]*sampleRow{toRow(sample)}, &buf); err != nil {
		return fmt.Errorf("marshal sample row: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append sample to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync partition %s: %w", path, err)
	}

	s.last[sample.FacilityID] = sample.Timestamp
	s.lastLoaded[sample.FacilityID] = true
	return nil
}

// ReadAll implements SampleStore.
func (s *CSVStore) ReadAll(ctx context.Context, facilityID string, fn func(model.Sample) error) error {
	paths, err := s.partitionPaths(facilityID)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := s.readPartition(ctx, path, facilityID, fn); err != nil {
			return err
		}
	}
	return nil
}

// Last implements SampleStore.
func (s *CSVStore) Last(ctx context.Context, facilityID string) (model.Sample, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Sample{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSampleLocked(facilityID)
}

func validateSample(sample model.Sample) error {
	if sample.FacilityID == "" {
		return fmt.Errorf("%w: empty facility id", ErrInvalidSample)
	}
	if sample.Timestamp.IsZero() || sample.Timestamp.Before(minSampleTime) {
		return fmt.Errorf("%w: timestamp %s out of bounds", ErrInvalidSample, sample.Timestamp)
	}
	if sample.Timestamp.After(time.Now().Add(maxFutureSkew)) {
		return fmt.Errorf("%w: timestamp %s too far in the future", ErrInvalidSample, sample.Timestamp)
	}
	if sample.Available != nil && *sample.Available < 0 {
		return fmt.Errorf("%w: negative available spots %d", ErrInvalidSample, *sample.Available)
	}
	return nil
}

// partitionFile returns the file name for the partition containing t, e.g.
// "12_2026-W35.csv" for weekly rollover or "12_2026-08-25.csv" for daily.
// Both period encodings are zero padded so lexical order is chronological.
func (s *CSVStore) partitionFile(facilityID string, t time.Time) string {
	var period string
	switch s.rollover {
	case RolloverDay:
		period = t.Format("2006-01-02")
	default:
		year, week := t.ISOWeek()
		period = fmt.Sprintf("%04d-W%02d", year, week)
	}
	return fmt.Sprintf("%s_%s.csv", facilityID, period)
}

// partitionPaths discovers all partition files for a facility, sorted so
// concatenating them yields ascending timestamps.
func (s *CSVStore) partitionPaths(facilityID string) ([]string, error) {
	facilityDir := filepath.Join(s.dir, facilityID)
	entries, err := os.ReadDir(facilityDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list partitions for facility %s: %w", facilityID, err)
	}

	prefix := facilityID + "_"
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".csv") {
			continue
		}
		paths = append(paths, filepath.Join(facilityDir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// readPartition streams one partition file through fn. Corruption is a
// data-quality problem, not a read failure: unreadable files and malformed
// rows are logged and skipped. Only fn errors and context cancellation
// propagate.
func (s *CSVStore) readPartition(ctx context.Context, path, facilityID string, fn func(model.Sample) error) error {
	f, err := os.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("partition", path).Msg("skipping unreadable partition")
		return nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows, validated per record below

	first := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				log.Warn().Err(err).Str("partition", path).Msg("skipping malformed csv row")
				continue
			}
			log.Warn().Err(err).Str("partition", path).Msg("skipping remainder of corrupt partition")
			return nil
		}

		if first {
			first = false
			if len(rec) > 0 && rec[0] == "timestamp" {
				continue
			}
		}

		sample, err := parseRecord(rec)
		if err != nil {
			log.Warn().Err(err).Str("partition", path).Msg("skipping malformed sample row")
			continue
		}
		if sample.FacilityID != facilityID {
			log.Warn().Str("partition", path).Str("facility", sample.FacilityID).
				Msg("skipping row with mismatched facility id")
			continue
		}

		if err := fn(sample); err != nil {
			return err
		}
	}
}

func parseRecord(rec []string) (model.Sample, error) {
	if len(rec) < 3 {
		return model.Sample{}, fmt.Errorf("expected 3 fields, got %d", len(rec))
	}
	ts, err := time.Parse(time.RFC3339, rec[0])
	if err != nil {
		return model.Sample{}, fmt.Errorf("bad timestamp %q: %w", rec[0], err)
	}
	sample := model.Sample{FacilityID: rec[1], Timestamp: ts}
	if cell := strings.TrimSpace(rec[2]); cell != "" {
		n, err := strconv.Atoi(cell)
		if err != nil {
			return model.Sample{}, fmt.Errorf("bad available_spots %q: %w", rec[2], err)
		}
		if n < 0 {
			return model.Sample{}, fmt.Errorf("negative available_spots %d", n)
		}
		sample.Available = &n
	}
	return sample, nil
}

// lastTimestampLocked resolves the newest stored timestamp for a facility,
// scanning partitions newest-first on the first call and caching afterwards.
func (s *CSVStore) lastTimestampLocked(facilityID string) (time.Time, error) {
	if s.lastLoaded[facilityID] {
		return s.last[facilityID], nil
	}
	sample, ok, err := s.lastSampleLocked(facilityID)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		s.last[facilityID] = sample.Timestamp
	}
	s.lastLoaded[facilityID] = true
	return s.last[facilityID], nil
}

func (s *CSVStore) lastSampleLocked(facilityID string) (model.Sample, bool, error) {
	paths, err := s.partitionPaths(facilityID)
	if err != nil {
		return model.Sample{}, false, err
	}
	for i := len(paths) - 1; i >= 0; i-- {
		var last model.Sample
		found := false
		err := s.readPartition(context.Background(), paths[i], facilityID, func(sample model.Sample) error {
			last = sample
			found = true
			return nil
		})
		if err != nil {
			return model.Sample{}, false, err
		}
		if found {
			return last, true, nil
		}
	}
	return model.Sample{}, false, nil
}
