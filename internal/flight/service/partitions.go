package service

import (
	"strings"

	"flightproxy/internal/flight/normalize"
)

// Partitions picks which airport feeds to query, and in what order, from the
// carrier prefix of a flight number. International carriers are checked
// first, so a carrier listed in both groups gets the international order.
type Partitions struct {
	InternationalCarriers []string
	DomesticCarriers      []string
	InternationalOrder    []string
	DomesticOrder         []string
	DefaultOrder          []string
}

// DefaultPartitions sends international carriers to Taoyuan first and
// domestic carriers to Songshan first.
func DefaultPartitions() Partitions {
	return Partitions{
		InternationalCarriers: []string{"BR", "CI", "JX", "IT", "AE", "TG", "SQ", "CX", "KE", "OZ", "TW", "VJ", "VZ"},
		DomesticCarriers:      []string{"B7", "AE", "MM"},
		InternationalOrder:    []string{"TPE", "TSA"},
		DomesticOrder:         []string{"TSA", "TPE"},
		DefaultOrder:          []string{"TPE", "TSA"},
	}
}

// For returns the airports to query for code, most likely first.
func (p Partitions) For(code string) []string {
	normalized := normalize.FlightNumber(code)
	if hasCarrierPrefix(normalized, p.InternationalCarriers) {
		return p.InternationalOrder
	}
	if hasCarrierPrefix(normalized, p.DomesticCarriers) {
		return p.DomesticOrder
	}
	return p.DefaultOrder
}

func hasCarrierPrefix(code string, carriers []string) bool {
	for _, c := range carriers {
		if c != "" && strings.HasPrefix(code, c) {
			return true
		}
	}
	return false
}
