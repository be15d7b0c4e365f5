package model

import "encoding/json"

// InsightRecord holds the aggregated statistics for one facility/bucket
// pair. BucketStart is the bucket's offset from midnight in minutes, local
// time; the date component of the contributing samples is discarded.
type InsightRecord struct {
	BucketStart int    `json:"bucket_start"`
	Label       string `json:"label"`
	// SampleCount is the number of samples that contributed to the
	// statistics. Sensor-error samples are tallied in UnavailableCount
	// instead and never feed mean/median/min/max.
	SampleCount      int      `json:"sample_count"`
	Mean             float64  `json:"mean"`
	Median           float64  `json:"median"`
	Min              int      `json:"min"`
	Max              int      `json:"max"`
	UnavailableCount int      `json:"unavailable_count"`
	LowData          bool     `json:"low_data"`
	NoData           bool     `json:"no_data,omitempty"`
	PercentFull      *float64 `json:"percent_full,omitempty"`

	// EmitNullPercentFull makes a nil PercentFull serialize as an explicit
	// null instead of being omitted. Set by the aggregator when the
	// percent_full_when_unknown policy is "null".
	EmitNullPercentFull bool `json:"-"`
}

// MarshalJSON implements the configurable percent_full policy: with the
// default policy a nil value drops the key entirely, with the "null" policy
// the key is present and null.
func (r InsightRecord) MarshalJSON() ([]byte, error) {
	type alias InsightRecord
	if r.PercentFull != nil || !r.EmitNullPercentFull {
		return json.Marshal(alias(r))
	}
	return json.Marshal(struct {
		alias
		PercentFull *float64 `json:"percent_full"`
	}{alias: alias(r)})
}
