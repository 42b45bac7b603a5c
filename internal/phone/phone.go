// Package phone canonicalizes raw phone strings into dialable E.164 numbers.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/rotisserie/eris"
)

// DefaultRegion is assumed when a number carries no country code.
const DefaultRegion = "US"

// ErrInvalid is returned for input that cannot be turned into a valid number.
var ErrInvalid = eris.New("phone: invalid number")

// Normalize returns raw in E.164 form (e.g. +15551234567).
func Normalize(raw string) (string, error) {
	return NormalizeRegion(raw, DefaultRegion)
}

// NormalizeRegion is Normalize with an explicit default region.
func NormalizeRegion(raw, region string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", eris.Wrap(ErrInvalid, "empty input")
	}
	// "00" international prefix is not understood by the parser without a region hint.
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}

	num, err := phonenumbers.Parse(s, region)
	if err != nil {
		return "", eris.Wrapf(ErrInvalid, "parse %q: %v", raw, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", eris.Wrapf(ErrInvalid, "%q", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Equal reports whether two raw strings denote the same number.
func Equal(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na == nb
}
