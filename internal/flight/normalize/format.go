package normalize

import (
	"strings"

	"flightproxy/internal/flight/models"
)

// statusCodes maps TDX FIDS numeric status codes.
var statusCodes = map[string]models.Status{
	"0": models.StatusScheduled,
	"1": models.StatusActive,
	"2": models.StatusLanded,
	"3": models.StatusCancelled,
	"4": models.StatusDelayed,
}

// Status translates an upstream status code; unknown codes are scheduled.
func Status(code string) models.Status {
	if s, ok := statusCodes[strings.TrimSpace(code)]; ok {
		return s
	}
	return models.StatusScheduled
}

// Format maps a raw record fetched from home's feed into the canonical shape.
// A record with ScheduleDepartureTime departs from home; otherwise it arrives
// there. The home side takes its identity from the airport directory, the far
// side from the record's own airport fields. matched is the candidate code
// that selected the record and becomes the reported flight number.
func (a Aliases) Format(r models.RawRecord, home models.Airport, matched string) models.FlightRecord {
	departing := r.Has("ScheduleDepartureTime")

	homeSide := models.Endpoint{
		Airport:  home.Name,
		IATA:     home.IATA,
		ICAO:     home.ICAO,
		Timezone: home.Timezone,
	}

	dep := homeSide
	arr := farSide(r, "ArrivalAirportID", "ArrivalAirportName", home.Timezone)
	if !departing {
		dep = farSide(r, "DepartureAirportID", "DepartureAirportName", home.Timezone)
		arr = homeSide
	}

	terminal, gate := r.String("Terminal"), r.String("Gate")
	dep.Terminal, dep.Gate = terminal, gate
	arr.Terminal, arr.Gate = terminal, gate

	dep.Scheduled = r.String("ScheduleDepartureTime")
	dep.Estimated = r.String("EstimatedDepartureTime")
	dep.Actual = r.String("ActualDepartureTime")
	arr.Scheduled = r.String("ScheduleArrivalTime")
	arr.Estimated = r.String("EstimatedArrivalTime")
	arr.Actual = r.String("ActualArrivalTime")

	return models.FlightRecord{
		FlightNumber: a.flightNumber(r, matched),
		Airline:      airline(r, a.Airline),
		Status:       Status(r.String("FlightStatus")),
		Departure:    dep,
		Arrival:      arr,
		Aircraft:     aircraft(r),
		Source:       models.SourceTDX,
	}
}

func (a Aliases) flightNumber(r models.RawRecord, matched string) string {
	if matched != "" {
		return strings.ToUpper(strings.TrimSpace(matched))
	}
	carrier, numeric := r.First(a.Airline), r.First(a.Numeric)
	if prefix, _ := Parse(numeric); carrier != "" && numeric != "" && prefix == "" {
		return carrier + numeric
	}
	return r.First(a.FlightNumber)
}

func farSide(r models.RawRecord, idField, nameField, tz string) models.Endpoint {
	id := r.String(idField)
	name := r.Localized(nameField).ZhTw
	if name == "" {
		name = id
	}
	return models.Endpoint{
		Airport:  name,
		IATA:     id,
		Timezone: tz,
	}
}

func airline(r models.RawRecord, aliases []string) string {
	if id := r.First(aliases); id != "" {
		return id
	}
	if name := r.Localized("AirlineName").ZhTw; name != "" {
		return name
	}
	return "Unknown"
}

func aircraft(r models.RawRecord) *models.Aircraft {
	ac := models.Aircraft{
		Registration: r.String("AircraftRegistration"),
		IATA:         r.String("AcType"),
		ICAO:         r.String("AircraftICAO"),
	}
	if ac == (models.Aircraft{}) {
		return nil
	}
	return &ac
}
