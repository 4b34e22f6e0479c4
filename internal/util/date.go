package util

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

type DateFormat string

const (
	DateISO DateFormat = "YYYY-MM-DD"
	DateDMY DateFormat = "DD/MM/YYYY"
)

const minYear = 1950

var (
	reDayFirst  = regexp.MustCompile(`^(\d{1,2})[-/](\d{1,2})[-/](\d{4})$`)
	reYearFirst = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})$`)
)

// fallbackLayouts are tried in order once the numeric shapes fail.
// "01-02-06" is excelize's rendering of the builtin short date format.
var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.RFC1123Z,
	"01-02-06",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"2-Jan-06",
	"Mon Jan 2 2006",
}

func (f DateFormat) layout() string {
	if f == DateDMY {
		return "02/01/2006"
	}
	return "2006-01-02"
}

// StandardizeDate reformats a recognisable date. Unparseable input is returned
// unchanged; a parsed year outside [1950, now.Year()+1] yields "".
func StandardizeDate(input string, format DateFormat, now time.Time) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}
	t, ok := ParseDate(s)
	if !ok {
		return input
	}
	if t.Year() < minYear || t.Year() > now.Year()+1 {
		return ""
	}
	return t.Format(format.layout())
}

func ParseDate(s string) (time.Time, bool) {
	if m := reDayFirst.FindStringSubmatch(s); m != nil {
		return civilDate(m[3], m[2], m[1])
	}
	if m := reYearFirst.FindStringSubmatch(s); m != nil {
		return civilDate(m[1], m[2], m[3])
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func civilDate(ys, ms, ds string) (time.Time, bool) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	if m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || t.Month() != time.Month(m) {
		return time.Time{}, false
	}
	return t, true
}
