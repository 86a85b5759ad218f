// Package chrono owns the clock and the month range a harvest covers.
package chrono

import (
	"fmt"
	"time"
)

// TimeAPI is the interface that anything depending on the system clock should use.
type TimeAPI interface {
	Now() time.Time
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct{}

func (StandardTime) Now() time.Time {
	return time.Now()
}

// FixedTime is a TimeAPI that always returns the same instant.
type FixedTime time.Time

func (f FixedTime) Now() time.Time {
	return time.Time(f)
}

// Range resolves the months to harvest. start defaults to January and end to the month of
// now. Both must lie in 1..12 with start <= end. When the range is only the current month
// and that month is not January, the previous month is included as well, so activities
// logged late at the end of last month are picked up. The bool reports that inclusion.
func Range(start, end *int, now time.Time) ([]time.Month, bool, error) {
	current := int(now.Month())
	from := 1
	if start != nil {
		from = *start
	}
	to := current
	if end != nil {
		to = *end
	}

	if from < 1 || from > 12 {
		return nil, false, fmt.Errorf("start month must be between 1 and 12, got %d", from)
	}
	if to < 1 || to > 12 {
		return nil, false, fmt.Errorf("end month must be between 1 and 12, got %d", to)
	}
	if from > to {
		return nil, false, fmt.Errorf("start month (%d) cannot be after end month (%d)", from, to)
	}

	includedPrevious := false
	if from == current && to == current && current > 1 {
		from = current - 1
		includedPrevious = true
	}

	months := make([]time.Month, 0, to-from+1)
	for m := from; m <= to; m++ {
		months = append(months, time.Month(m))
	}
	return months, includedPrevious, nil
}

// IsPartial reports whether months covers less than January through the month of now.
func IsPartial(months []time.Month, now time.Time) bool {
	return len(months) < int(now.Month())
}
