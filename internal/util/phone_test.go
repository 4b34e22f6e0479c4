package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		format PhoneFormat
		want   string
	}{
		{name: "spaced plus91", input: "+91 98765 43210", format: PhonePlus91, want: "+919876543210"},
		{name: "spaced digits", input: "+91 98765 43210", format: PhoneDigits, want: "9876543210"},
		{name: "trunk zero", input: "098765-43210", format: PhonePlus91, want: "+919876543210"},
		{name: "long keeps last ten", input: "0091 98765 43210", format: PhoneDigits, want: "9876543210"},
		{name: "too short unchanged", input: "12345", format: PhonePlus91, want: "12345"},
		{name: "empty", input: "", format: PhonePlus91, want: ""},
		{name: "text unchanged", input: "call me", format: PhonePlus91, want: "call me"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizePhone(tc.input, tc.format))
		})
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	inputs := []string{
		"9876543210", "919876543210", "09198765432", "00123456789", "910123456789",
		"12345", "", "98765432101234", "0000000000", "9191919191919", "0",
	}
	for _, format := range []PhoneFormat{PhonePlus91, PhoneDigits} {
		for _, in := range inputs {
			once := NormalizePhone(in, format)
			assert.Equal(t, once, NormalizePhone(once, format), "format=%s input=%q", format, in)
		}
	}
}

func TestStrictMobile(t *testing.T) {
	cases := []struct {
		input string
		want  string
		ok    bool
	}{
		{input: "+91 98765 43210", want: "9876543210", ok: true},
		{input: "9876543210", want: "9876543210", ok: true},
		{input: "5876543210", ok: false},
		{input: "12345", ok: false},
		{input: "Ph: 11 22 7012345678 ext", want: "7012345678", ok: true},
		{input: "1234567890123", ok: false},
	}
	for _, tc := range cases {
		got, ok := StrictMobile(tc.input)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("StrictMobile(%q) = %q,%v want %q,%v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}
