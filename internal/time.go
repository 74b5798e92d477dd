package internal

import "time"

// CurrentTimestamp is *the* way to get a current timestamp and time.Now()
// should be avoided.
//
// Timestamps are rounded to the nearest millisecond so that they survive a
// round trip through postgres and JSON without losing precision, and they are
// in UTC so that testify's DeepEqual-based comparisons pass.
func CurrentTimestamp() time.Time {
	return time.Now().Round(time.Millisecond).UTC()
}
