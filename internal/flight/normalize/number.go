// Package normalize reconciles inconsistent upstream FIDS records into the
// canonical FlightRecord shape.
//
// Flight numbers arrive as "BR805", "BR 805", "br-805", "BR0805" or
// "BR805A"; all of them normalize to "BR805". Matching and cache keys always
// use the normalized form.
package normalize

import (
	"regexp"
	"strings"
)

// flightPattern is [airline prefix][digits][optional codeshare suffix].
var flightPattern = regexp.MustCompile(`^([A-Z]{1,4})?(\d{1,6})([A-Z])?$`)

var stripper = strings.NewReplacer("-", "")

// FlightNumber returns the canonical form of a flight code: whitespace and
// hyphens removed, uppercased, leading zeros of the numeric part dropped and
// a trailing suffix letter ignored. Codes that do not fit the
// prefix/digits/suffix shape are returned cleaned but otherwise untouched.
func FlightNumber(code string) string {
	s := strings.ToUpper(stripper.Replace(strings.Join(strings.Fields(code), "")))
	airline, digits, _, ok := split(s)
	if !ok {
		return s
	}
	return airline + trimZeros(digits)
}

// Parse splits a flight code into its airline prefix and numeric part, both
// in normalized form. Unparseable codes return two empty strings.
func Parse(code string) (airline, numeric string) {
	airline, digits, suffix, ok := split(FlightNumber(code))
	if !ok || suffix != "" {
		return "", ""
	}
	return airline, digits
}

// split matches flightPattern and moves the digit of a letter-digit carrier
// code such as B7 back into the airline prefix.
func split(s string) (airline, digits, suffix string, ok bool) {
	m := flightPattern.FindStringSubmatch(s)
	if m == nil {
		return "", "", "", false
	}
	airline, digits, suffix = m[1], m[2], m[3]
	if len(airline) == 1 && len(digits) > 1 {
		airline, digits = airline+digits[:1], digits[1:]
	}
	return airline, digits, suffix, true
}

// Equal reports whether two flight codes refer to the same flight number.
func Equal(a, b string) bool {
	return FlightNumber(a) == FlightNumber(b)
}

func trimZeros(digits string) string {
	d := strings.TrimLeft(digits, "0")
	if d == "" {
		return "0"
	}
	return d
}
