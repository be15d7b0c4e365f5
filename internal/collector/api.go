package collector

import (
	"fmt"
	"strconv"
	"strings"
)

// occupancyResponse models the car park API payload for a single facility.
type occupancyResponse struct {
	FacilityID      string    `json:"facility_id"`
	FacilityName    string    `json:"facility_name"`
	TfNSWFacilityID string    `json:"tfnsw_facility_id"`
	MessageDate     string    `json:"MessageDate"`
	Spots           flexCount `json:"spots"`
	Occupancy       struct {
		Total flexCount `json:"total"`
	} `json:"occupancy"`
	Location struct {
		Suburb    string `json:"suburb"`
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
	} `json:"location"`
}

// flexCount tolerates the upstream API's habit of returning counts as bare
// numbers, numeric strings, or null. A nil value means the count was
// absent.
type flexCount struct {
	value *int64
}

func (f *flexCount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		f.value = nil
		return nil
	}
	s = strings.Trim(s, `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("count is neither a number nor a numeric string: %q", s)
	}
	f.value = &n
	return nil
}

// Value returns the parsed count, or nil when the API sent none.
func (f flexCount) Value() *int64 { return f.value }
