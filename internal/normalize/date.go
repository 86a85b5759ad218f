package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var monthAbbrevs = [...]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// MonthAbbrev returns the 3-letter English abbreviation of m.
func MonthAbbrev(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthAbbrevs[m-1]
}

// MonthFromAbbrev resolves "Jan".."Dec" (case-insensitive, longer names are cut to three
// letters) into a month.
func MonthFromAbbrev(abbrev string) (time.Month, bool) {
	abbrev = strings.TrimSpace(abbrev)
	if len(abbrev) < 3 {
		return 0, false
	}
	abbrev = strings.ToLower(abbrev[:3])
	for i, a := range monthAbbrevs {
		if strings.ToLower(a) == abbrev {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

// twoDigitYear returns the last two characters of year, left padded with zeros.
func twoDigitYear(year string) string {
	year = strings.TrimSpace(year)
	if len(year) >= 2 {
		return year[len(year)-2:]
	}
	return strings.Repeat("0", 2-len(year)) + year
}

func parseDay(s string) (int, bool) {
	day, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || day < 1 || day > 31 {
		return 0, false
	}
	return day, true
}

func parseMonth(s string) (int, bool) {
	month, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || month < 1 || month > 12 {
		return 0, false
	}
	return month, true
}

func format(month, day int, yy string) string {
	return fmt.Sprintf("%02d/%02d/%s", month, day, yy)
}

// NormalizeDate turns the date text of an activity row into "mm/dd/yy". The row shows
// either "mm/dd", "Mon DD" or a bare day, the year and (for the last two shapes) the month
// come from the month being harvested. Unparsable text falls back to raw + "/" + yy.
func NormalizeDate(raw, monthAbbrev, year string) string {
	yy := twoDigitYear(year)
	text := strings.TrimSpace(raw)
	fallback := raw + "/" + yy

	if strings.Contains(text, "/") {
		parts := strings.Split(text, "/")
		if len(parts) != 2 {
			return fallback
		}
		month, ok := parseMonth(parts[0])
		if !ok {
			return fallback
		}
		day, ok := parseDay(parts[1])
		if !ok {
			return fallback
		}
		return format(month, day, yy)
	}

	month, ok := MonthFromAbbrev(monthAbbrev)
	if !ok {
		return fallback
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return fallback
	}
	day, ok := parseDay(fields[len(fields)-1])
	if !ok {
		return fallback
	}
	return format(int(month), day, yy)
}

// MonthNumber returns the leading month of a "mm/dd/yy" date, false when the leading token
// is not a number in 1..12.
func MonthNumber(date string) (int, bool) {
	head, _, found := strings.Cut(strings.TrimSpace(date), "/")
	if !found {
		return 0, false
	}
	return parseMonth(head)
}

var (
	canonicalDate = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{2})$`)
	slashDate     = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2}|\d{4})$`)
	abbrevDate    = regexp.MustCompile(`^([A-Za-z]{3,9})\.? (\d{1,2})(?:,? |/)(\d{2}|\d{4})$`)
	isoDate       = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
)

// Canonicalize rewrites dates persisted by earlier versions into "mm/dd/yy". Accepted shapes
// are "mm/dd/yy", "m/d/yy", "m/d/yyyy", "Jan 15/25" (the fallback shape of NormalizeDate),
// "Jan 15, 2025" and ISO "2025-01-15". It returns false when the date has none of them.
func Canonicalize(date string) (string, bool) {
	date = strings.TrimSpace(date)

	if m := canonicalDate.FindStringSubmatch(date); m != nil {
		_, okMonth := parseMonth(m[1])
		_, okDay := parseDay(m[2])
		if okMonth && okDay {
			return date, true
		}
		return "", false
	}
	if m := slashDate.FindStringSubmatch(date); m != nil {
		month, okMonth := parseMonth(m[1])
		day, okDay := parseDay(m[2])
		if !okMonth || !okDay {
			return "", false
		}
		return format(month, day, twoDigitYear(m[3])), true
	}
	if m := abbrevDate.FindStringSubmatch(date); m != nil {
		month, ok := MonthFromAbbrev(m[1])
		if !ok {
			return "", false
		}
		day, ok := parseDay(m[2])
		if !ok {
			return "", false
		}
		return format(int(month), day, twoDigitYear(m[3])), true
	}
	if m := isoDate.FindStringSubmatch(date); m != nil {
		month, okMonth := parseMonth(m[2])
		day, okDay := parseDay(m[3])
		if !okMonth || !okDay {
			return "", false
		}
		return format(month, day, twoDigitYear(m[1])), true
	}
	return "", false
}
