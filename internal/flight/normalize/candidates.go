package normalize

import (
	"regexp"

	"flightproxy/internal/flight/models"
	pstrings "flightproxy/pkg/platform/strings"
)

// Aliases is the precedence table for upstream field names. Earlier entries
// win. New airports with new spellings only need another entry here (or in
// configuration), not new code.
type Aliases struct {
	// FlightNumber fields may hold a bare number, a full code, or several
	// codeshare codes in one string.
	FlightNumber []string
	// Numeric fields hold the number when the airline is stored separately.
	Numeric []string
	// Airline fields hold the carrier code.
	Airline []string
}

// DefaultAliases covers every spelling seen across the TDX airport feeds.
var DefaultAliases = Aliases{
	FlightNumber: []string{"FlightNumber", "FlightNo", "FlightNO", "FlightNbr", "Flight"},
	Numeric:      []string{"FlightNumber", "FlightNo", "FlightNO", "FlightNbr"},
	Airline:      []string{"AirlineID", "CarrierID", "AirlineIATA", "AirlineICAO"},
}

// With returns a copy of a with extra flight-number aliases appended. Extra
// names also count as numeric fields.
func (a Aliases) With(extraFlightNumber ...string) Aliases {
	out := Aliases{
		FlightNumber: append(append([]string(nil), a.FlightNumber...), extraFlightNumber...),
		Numeric:      append(append([]string(nil), a.Numeric...), extraFlightNumber...),
		Airline:      append([]string(nil), a.Airline...),
	}
	out.FlightNumber = pstrings.DedupeAndTrim(out.FlightNumber)
	out.Numeric = pstrings.DedupeAndTrim(out.Numeric)
	return out
}

var codeshareSeparators = regexp.MustCompile(`[\s,/]+`)

// Candidates lists every flight code a record could be known by: each
// codeshare entry of the flight-number field, plus airline+number and
// airline-number when the two are stored separately. The list is
// de-duplicated by normalized form; the first spelling wins.
func (a Aliases) Candidates(r models.RawRecord) []string {
	var list []string
	if raw := r.First(a.FlightNumber); raw != "" {
		list = append(list, codeshareSeparators.Split(raw, -1)...)
	}

	airline := r.First(a.Airline)
	numeric := r.First(a.Numeric)
	if prefix, _ := Parse(numeric); airline != "" && numeric != "" && prefix == "" {
		list = append(list, airline+numeric, airline+"-"+numeric)
	}

	return pstrings.DedupeBy(list, FlightNumber)
}

// Match returns the first record whose candidates include code, along with
// the candidate spelling that matched.
func (a Aliases) Match(code string, records []models.RawRecord) (models.RawRecord, string, bool) {
	wanted := FlightNumber(code)
	if wanted == "" {
		return nil, "", false
	}
	for _, rec := range records {
		for _, c := range a.Candidates(rec) {
			if FlightNumber(c) == wanted {
				return rec, c, true
			}
		}
	}
	return nil, "", false
}
