package aggregate

import (
	"fmt"
	"time"
)

// BucketOf projects a timestamp onto its time-of-day bucket: the date
// component is discarded and the time component floored to the bucket
// width. The result is the bucket's start offset from midnight in minutes.
func BucketOf(t time.Time, width time.Duration) int {
	minutes := t.Hour()*60 + t.Minute()
	w := int(width / time.Minute)
	return minutes - minutes%w
}

// Label renders a bucket start offset as a 12-hour clock label, e.g.
// "8:00 AM" for 480.
func Label(startMinutes int) string {
	hour := startMinutes / 60
	minute := startMinutes % 60
	period := "AM"
	if hour >= 12 {
		period = "PM"
	}
	displayHour := hour % 12
	if displayHour == 0 {
		displayHour = 12
	}
	return fmt.Sprintf("%d:%02d %s", displayHour, minute, period)
}
