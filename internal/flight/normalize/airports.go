package normalize

import (
	"strings"

	"flightproxy/internal/flight/models"
)

const taipeiTZ = "Asia/Taipei"

// Airports is the directory of partitions the proxy knows how to query.
var Airports = map[string]models.Airport{
	"TPE": {IATA: "TPE", ICAO: "RCTP", Name: "台灣桃園國際機場", Timezone: taipeiTZ},
	"TSA": {IATA: "TSA", ICAO: "RCSS", Name: "台北松山機場", Timezone: taipeiTZ},
	"KHH": {IATA: "KHH", ICAO: "RCKH", Name: "高雄國際機場", Timezone: taipeiTZ},
	"RMQ": {IATA: "RMQ", ICAO: "RCMQ", Name: "臺中國際機場", Timezone: taipeiTZ},
}

// LookupAirport returns the directory entry for code. Unknown codes get a
// minimal entry named after the code so formatting never fails.
func LookupAirport(code string) models.Airport {
	code = strings.ToUpper(strings.TrimSpace(code))
	if a, ok := Airports[code]; ok {
		return a
	}
	return models.Airport{IATA: code, Name: code, Timezone: taipeiTZ}
}
