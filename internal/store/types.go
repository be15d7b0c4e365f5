package store

import (
	"errors"
	"time"

	"parkride-insights-backend/internal/model"
)

// ErrDuplicateTimestamp is returned by Append when a sample already exists
// at the exact same timestamp for that facility. Callers are expected to
// treat it as non-fatal and skip.
var ErrDuplicateTimestamp = errors.New("duplicate sample timestamp")

// ErrInvalidSample is returned by Append for samples with a negative spot
// count or a timestamp outside sane bounds.
var ErrInvalidSample = errors.New("invalid sample")

// sampleRow is the on-disk CSV representation of a single sample. The
// available_spots cell is empty when the facility reported a sensor error.
type sampleRow struct {
	Timestamp  csvTime `csv:"timestamp"`
	FacilityID string  `csv:"facility_id"`
	Available  *int    `csv:"available_spots"`
}

// csvTime serializes timestamps as RFC3339 with the zone offset preserved.
type csvTime struct {
	time.Time
}

func (t csvTime) MarshalCSV() (string, error) {
	return t.Format(time.RFC3339), nil
}

func (t *csvTime) UnmarshalCSV(s string) error {
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func toRow(s model.Sample) *sampleRow {
	return &sampleRow{
		Timestamp:  csvTime{s.Timestamp},
		FacilityID: s.FacilityID,
		Available:  s.Available,
	}
}
