package util

import "strings"

type PhoneFormat string

const (
	PhonePlus91 PhoneFormat = "plus91"
	PhoneDigits PhoneFormat = "digits"
)

func Digits(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func FormatPhone(ten string, format PhoneFormat) string {
	if format == PhoneDigits {
		return ten
	}
	return "+91" + ten
}

// NormalizePhone canonicalises an Indian number. Values that do not reduce to
// ten digits come back unchanged.
func NormalizePhone(input string, format PhoneFormat) string {
	d := Digits(input)
	if strings.HasPrefix(d, "91") && len(d) > 10 {
		d = d[2:]
	}
	if strings.HasPrefix(d, "0") {
		d = d[1:]
	}
	if len(d) > 10 {
		d = d[len(d)-10:]
	}
	if len(d) != 10 {
		return input
	}
	return FormatPhone(d, format)
}

func isMobileStart(b byte) bool {
	return b >= '6' && b <= '9'
}

func validMobile(d string) bool {
	return len(d) == 10 && isMobileStart(d[0])
}

// StrictMobile finds a ten digit mobile number starting with 6-9. It returns
// the bare digits and whether one was found.
func StrictMobile(input string) (string, bool) {
	d := Digits(input)
	if strings.HasPrefix(d, "91") && len(d) > 10 && validMobile(d[2:]) {
		return d[2:], true
	}
	if validMobile(d) {
		return d, true
	}
	if len(d) < 10 {
		return "", false
	}
	for i := 0; i+10 <= len(d); i++ {
		if isMobileStart(d[i]) {
			return d[i : i+10], true
		}
	}
	if last := d[len(d)-10:]; validMobile(last) {
		return last, true
	}
	return "", false
}
