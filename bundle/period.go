package bundle

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// PERIOD - Month name <-> calendar month conversion
// =============================================================================

// monthNames holds the lowercase English names, indexed by time.Month.
// Labels are locale-independent on purpose: they are parsed from scraped
// URLs and stored as integers.
var monthNames = [...]string{
	time.January:   "january",
	time.February:  "february",
	time.March:     "march",
	time.April:     "april",
	time.May:       "may",
	time.June:      "june",
	time.July:      "july",
	time.August:    "august",
	time.September: "september",
	time.October:   "october",
	time.November:  "november",
	time.December:  "december",
}

// ParseMonth converts an English month name ("october", "October") to its
// calendar month.
func ParseMonth(label string) (time.Month, error) {
	want := strings.ToLower(strings.TrimSpace(label))
	for m := time.January; m <= time.December; m++ {
		if monthNames[m] == want {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown month %q", ErrInvalidPeriod, label)
}

// MonthLabel returns the lowercase English name of m.
func MonthLabel(m time.Month) string {
	if !ValidMonth(m) {
		return ""
	}
	return monthNames[m]
}

// ValidMonth reports whether m is in 1..12.
func ValidMonth(m time.Month) bool {
	return m >= time.January && m <= time.December
}

// Title renders a period as "October 2023".
func Title(m time.Month, year int) string {
	return fmt.Sprintf("%s %d", cases.Title(language.English).String(MonthLabel(m)), year)
}
