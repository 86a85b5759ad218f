package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"runharvest/internal/normalize"
)

// MonthToken identifies a month tab of the activity list, it renders as "Jan-01-2025".
type MonthToken struct {
	Month time.Month
	Year  int
}

func (m MonthToken) String() string {
	return fmt.Sprintf("%s-01-%d", normalize.MonthAbbrev(m.Month), m.Year)
}

// Abbrev is the month abbreviation used as date context for the month's rows.
func (m MonthToken) Abbrev() string {
	return normalize.MonthAbbrev(m.Month)
}

func (m MonthToken) YearText() string {
	return strconv.Itoa(m.Year)
}

// Selector matches the month's tab.
func (m MonthToken) Selector() string {
	return fmt.Sprintf(`[data-date="%s"]`, m.String())
}

func ParseMonthToken(s string) (MonthToken, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 || parts[1] != "01" {
		return MonthToken{}, fmt.Errorf("invalid month token %q", s)
	}
	month, ok := normalize.MonthFromAbbrev(parts[0])
	if !ok || len(parts[0]) != 3 {
		return MonthToken{}, fmt.Errorf("invalid month in token %q", s)
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil || len(parts[2]) != 4 {
		return MonthToken{}, fmt.Errorf("invalid year in token %q", s)
	}
	return MonthToken{Month: month, Year: year}, nil
}

// Tokens builds the month tokens of months in year.
func Tokens(months []time.Month, year int) []MonthToken {
	out := make([]MonthToken, len(months))
	for i, m := range months {
		out[i] = MonthToken{Month: m, Year: year}
	}
	return out
}
