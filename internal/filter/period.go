// internal/filter/period.go
package filter

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNoPeriod is returned when no calendar expression is recognized.
var ErrNoPeriod = errors.New("no period found in text")

var monthsByName = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var (
	wordPattern = regexp.MustCompile(`[a-zA-Z]+|\d{4}`)
)

// ResolvePeriod turns a free-text calendar expression into an inclusive
// date range in loc. Recognized forms:
//
//	"Jun 2024", "June 2024", "Jun-2024"      one month
//	"Jun 2024 to Aug 2024", "Jun to Aug 2024" month range (end inclusive)
//	"2024", "2023 to 2024"                    full calendar year(s)
//	"August"                                  most recent occurrence of the month
//
// An inverted range is swapped, never rejected. Resolution is purely a
// function of text, now and loc, so repeated calls are stable.
func ResolvePeriod(text string, now time.Time, loc *time.Location) (*Period, error) {
	var months []time.Month
	var years []int

	for _, tok := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if m, ok := monthsByName[tok]; ok {
			months = append(months, m)
			continue
		}
		if len(tok) == 4 {
			if y, err := strconv.Atoi(tok); err == nil && y >= 1900 && y <= 2099 {
				years = append(years, y)
			}
		}
	}

	switch {
	case len(months) >= 2 && len(years) >= 2:
		// "Jun 2024 to Aug 2024"
		return makeRange(years[0], months[0], years[1], months[1], loc), nil

	case len(months) >= 2 && len(years) == 1:
		// "Jun to Aug 2024"
		return makeRange(years[0], months[0], years[0], months[1], loc), nil

	case len(months) == 1 && len(years) >= 1:
		// "Jun 2024"
		return makeRange(years[0], months[0], years[0], months[0], loc), nil

	case len(months) == 1:
		// Month only: most recent occurrence relative to now. The current
		// month resolves to the current year; a month not yet reached this
		// year resolves to the previous year.
		year := now.In(loc).Year()
		if months[0] > now.In(loc).Month() {
			year--
		}
		return makeRange(year, months[0], year, months[0], loc), nil

	case len(years) >= 2:
		// "2023 to 2024"
		return makeRange(years[0], time.January, years[1], time.December, loc), nil

	case len(years) == 1:
		// "2024"
		return makeRange(years[0], time.January, years[0], time.December, loc), nil
	}

	return nil, ErrNoPeriod
}

func makeRange(startYear int, startMonth time.Month, endYear int, endMonth time.Month, loc *time.Location) *Period {
	start := time.Date(startYear, startMonth, 1, 0, 0, 0, 0, loc)
	end := time.Date(endYear, endMonth, 1, 0, 0, 0, 0, loc)

	if end.Before(start) {
		start, end = end, start
	}

	// End is inclusive: last nanosecond of the final month.
	end = end.AddDate(0, 1, 0).Add(-time.Nanosecond)

	return &Period{Start: start, End: end}
}
