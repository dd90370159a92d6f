package constants

// Racemap timing input API.
const (
	TimingInputPath = "/services/trackping/api/v1/timing_input/pings"
	APITokenHeader  = "api-token"
)
