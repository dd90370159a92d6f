package models

// TimingRead is one normalized passing as accepted by the Racemap timing input API.
type TimingRead struct {
	Timestamp  string   `json:"timestamp"`     // ISO-8601 instant in UTC with milliseconds
	ChipID     string   `json:"chipId"`        // prefixed transponder id
	TimingID   string   `json:"timingId"`      // id of the timing point
	TimingName string   `json:"timingName"`    // user defined name of the timing point, i.e. Start or Finish
	Lat        *float64 `json:"lat,omitempty"` // latitude in degree, rarely available
	Lng        *float64 `json:"lng,omitempty"` // longitude in degree
	Alt        *float64 `json:"alt,omitempty"` // elevation in meters above sea level
}
