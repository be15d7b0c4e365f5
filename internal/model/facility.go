package model

import "time"

// Facility represents one tracked Park&Ride car park. Reference data comes
// from static configuration and is upserted at startup; the pipeline never
// mutates it.
type Facility struct {
	ID        string `gorm:"primaryKey;size:32"`
	Name      string `gorm:"size:128;not null"`
	Spots     int    `gorm:"not null"` // total capacity; 0 means unknown
	Suburb    string `gorm:"size:64"`
	Latitude  float64
	Longitude float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FacilityStatus is the coarse occupancy classification shown to users and
// used to decide notification transitions.
type FacilityStatus string

const (
	StatusAvailable  FacilityStatus = "Available"
	StatusAlmostFull FacilityStatus = "Almost Full"
	StatusFull       FacilityStatus = "Full"
	StatusUnknown    FacilityStatus = "Unknown"
)

// ClassifyStatus maps an observed available-spot count onto a FacilityStatus.
// A nil count means the facility's sensors reported an error. The "Almost
// Full" threshold is 10% of total capacity and only applies when capacity is
// known.
func ClassifyStatus(available *int, spots int) FacilityStatus {
	if available == nil {
		return StatusUnknown
	}
	if *available < 1 {
		return StatusFull
	}
	if spots > 0 && float64(*available) < float64(spots)*0.1 {
		return StatusAlmostFull
	}
	return StatusAvailable
}
