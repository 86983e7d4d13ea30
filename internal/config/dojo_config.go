package config

import "time"

// DojoConfig describes the upstream ChessDojo task-tracking API.
type DojoConfig interface {
	GetDojoBaseURL() string
	GetDojoRequestTimeout() time.Duration
}

type Dojo struct{}

var _ DojoConfig = Dojo{}

func (Dojo) GetDojoBaseURL() string {
	return GetEnv("CHESSDOJO_BASE_URL", "https://g4shdaq6ug.execute-api.us-east-1.amazonaws.com")
}

func (Dojo) GetDojoRequestTimeout() time.Duration {
	return GetEnvSeconds("REQUEST_TIMEOUT_SECONDS", 20*time.Second)
}
