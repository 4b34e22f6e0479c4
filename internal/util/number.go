package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reThousandsDot   = regexp.MustCompile(`^[-+]?\d{1,3}(?:\.\d{3})+$`)
	reThousandsComma = regexp.MustCompile(`^[-+]?\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
	reNumeric        = regexp.MustCompile(`^[-+]?[0-9.,]*[0-9][0-9.,]*$`)
	reCurrencyMark   = regexp.MustCompile(`(?i)^(?:₹|rs\.?|inr|\$|usd|€|eur|£)\s*|\s*(?:₹|rs\.?|inr|\$|usd|€|eur|£)$`)
)

// ParseNumber reads a plain number, tolerating grouping separators and a
// decimal comma.
func ParseNumber(input string) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(input), "\u00A0", "")
	s = strings.ReplaceAll(s, " ", "")
	if !reNumeric.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(normalizeNumericToken(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseCurrency reads an amount carrying a currency marker.
func ParseCurrency(input string) (float64, bool) {
	s := strings.TrimSpace(input)
	if !reCurrencyMark.MatchString(s) {
		return 0, false
	}
	return ParseNumber(reCurrencyMark.ReplaceAllString(s, ""))
}

func normalizeNumericToken(token string) string {
	if reThousandsDot.MatchString(token) {
		return strings.ReplaceAll(token, ".", "")
	}
	if reThousandsComma.MatchString(token) {
		return strings.ReplaceAll(token, ",", "")
	}
	if strings.Contains(token, ",") && !strings.Contains(token, ".") {
		return strings.ReplaceAll(token, ",", ".")
	}
	return token
}
