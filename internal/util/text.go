package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	reSpaces  = regexp.MustCompile(`[\s\p{Zs}]+`)
	reSymbols = regexp.MustCompile(`[@!#$%^&*()]`)
)

var emptyMarkers = map[string]struct{}{
	"na":        {},
	"n/a":       {},
	"null":      {},
	"undefined": {},
	"-":         {},
}

// CollapseSpaces trims and folds whitespace runs into one space.
func CollapseSpaces(input string) string {
	s := norm.NFC.String(input)
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// TitleCase upper-cases the first letter of every whitespace-delimited token
// and lower-cases the rest.
func TitleCase(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	start := true
	for _, r := range input {
		if unicode.IsSpace(r) {
			start = true
			b.WriteRune(r)
			continue
		}
		if start {
			b.WriteRune(unicode.ToUpper(r))
			start = false
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F600 && r <= 0x1F64F,
		r >= 0x1F300 && r <= 0x1F5FF,
		r >= 0x1F680 && r <= 0x1F6FF,
		r >= 0x1F1E0 && r <= 0x1F1FF,
		r >= 0x1F900 && r <= 0x1F9FF,
		r >= 0x2600 && r <= 0x26FF,
		r >= 0x2700 && r <= 0x27BF,
		r == 0xFE0F, r == 0x200D:
		return true
	}
	return false
}

func StripEmoji(input string) string {
	if input == "" {
		return input
	}
	out := strings.Map(func(r rune) rune {
		if isEmoji(r) {
			return -1
		}
		return r
	}, input)
	if out == input {
		return input
	}
	return strings.TrimSpace(out)
}

func NormalizeYesNo(input string) string {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "yes", "y", "true", "1":
		return "Yes"
	case "no", "n", "false", "0":
		return "No"
	}
	return input
}

func IsEmptyMarker(input string) bool {
	_, ok := emptyMarkers[strings.ToLower(strings.TrimSpace(input))]
	return ok
}

// StandardizeEmpty maps placeholder values such as "N/A" to "".
func StandardizeEmpty(input string) string {
	if IsEmptyMarker(input) {
		return ""
	}
	return input
}

func StripSymbols(input string) string {
	return CollapseSpaces(reSymbols.ReplaceAllString(input, ""))
}
