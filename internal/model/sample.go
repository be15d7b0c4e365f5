package model

import "time"

// Sample is one timestamped occupancy observation for a facility.
// Samples are appended once and never mutated; for a given facility their
// timestamps are strictly increasing in storage order.
type Sample struct {
	FacilityID string
	Timestamp  time.Time
	// Available is the observed free-spot count. Nil marks the slot as
	// "unavailable": the facility responded but its sensors reported an
	// error. A missing slot (transient fetch failure) has no Sample at all.
	Available *int
}

// Unavailable reports whether this sample carries the sensor-error marker
// rather than a usable count.
func (s Sample) Unavailable() bool {
	return s.Available == nil
}
