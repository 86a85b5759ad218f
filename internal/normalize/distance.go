// Package normalize converts raw text scraped from activity pages into canonical forms.
// Every function here is total: malformed input never panics.
package normalize

import (
	"strconv"
	"strings"
)

// KilometersToMiles is the factor applied to distances shown in km.
const KilometersToMiles = 0.621371

// ParseDistance reads "<value> <unit>" text into miles. It returns false when the text is
// empty, does not split into exactly two tokens, carries a non-numeric value or uses a unit
// other than mi or km.
func ParseDistance(text string) (float64, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return 0, false
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}

	switch strings.ToLower(fields[1]) {
	case "mi":
		return value, true
	case "km":
		return value * KilometersToMiles, true
	default:
		return 0, false
	}
}

// DistanceUnit returns the unit token of distance text, empty when there is none.
func DistanceUnit(text string) string {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return ""
	}
	return strings.ToLower(fields[1])
}
