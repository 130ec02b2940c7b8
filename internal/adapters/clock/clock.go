package clock

import "time"

// Clock provides wall clock access.
type Clock struct{}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
