package clock

import (
	"fmt"
	"time"
)

const layout = "2006-01-02T15:04:05Z"

// Now returns the current UTC time as a second-precision string, the format
// used in response timestamps and audit records.
func Now() string {
	return time.Now().UTC().Format(layout)
}

// Parse converts a timestamp produced by Now back to a time.Time.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a valid time: %s", s)
	}
	return t, nil
}
