package models

// Status is the canonical flight status reported to callers.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusLanded    Status = "landed"
	StatusCancelled Status = "cancelled"
	StatusDelayed   Status = "delayed"
)

// IsValid checks if the status is one of the supported enum values.
func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusActive, StatusLanded, StatusCancelled, StatusDelayed:
		return true
	}
	return false
}

// SourceTDX tags records fetched from the Taiwan transport data FIDS feeds.
const SourceTDX = "TDX"

// FlightRecord is the canonical response body. It is a value object built
// fresh per lookup; JSON field order is fixed by the struct so cached replays
// encode byte-identically.
type FlightRecord struct {
	FlightNumber string    `json:"flightNumber"`
	Airline      string    `json:"airline"`
	Status       Status    `json:"status"`
	Departure    Endpoint  `json:"departure"`
	Arrival      Endpoint  `json:"arrival"`
	Aircraft     *Aircraft `json:"aircraft"`
	Source       string    `json:"source"`
}

// Endpoint describes one side of a flight. Time fields are passed through as
// the upstream's local timestamps and omitted when the upstream has none.
type Endpoint struct {
	Airport   string `json:"airport"`
	IATA      string `json:"iata"`
	ICAO      string `json:"icao"`
	Terminal  string `json:"terminal"`
	Gate      string `json:"gate"`
	Scheduled string `json:"scheduled,omitempty"`
	Estimated string `json:"estimated,omitempty"`
	Actual    string `json:"actual,omitempty"`
	Timezone  string `json:"timezone"`
}

// Aircraft is optional equipment information.
type Aircraft struct {
	Registration string `json:"registration,omitempty"`
	IATA         string `json:"iata,omitempty"`
	ICAO         string `json:"icao,omitempty"`
}

// Airport identifies an upstream partition and the "home" side of the
// records it returns.
type Airport struct {
	IATA     string
	ICAO     string
	Name     string
	Timezone string
}
