package util

import (
	"regexp"
	"strings"
)

var (
	reEmail    = regexp.MustCompile(`^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)
	reDotRuns  = regexp.MustCompile(`\.{2,}`)
	emailTypos = strings.NewReplacer("@gmai1.com", "@gmail.com", "@gma1l.com", "@gmail.com")
)

// NormalizeEmail repairs common typing and OCR damage. Anything that still
// fails validation is returned as given.
func NormalizeEmail(input string) string {
	if strings.TrimSpace(input) == "" {
		return input
	}
	s := strings.Join(strings.Fields(strings.ToLower(input)), "")
	s = reDotRuns.ReplaceAllString(s, ".")
	s = strings.Trim(s, ".")
	if parts := strings.Split(s, "@"); len(parts) > 2 {
		s = parts[0] + "@" + strings.Join(parts[1:], "")
	}
	s = emailTypos.Replace(s)
	if !reEmail.MatchString(s) {
		return input
	}
	return s
}
