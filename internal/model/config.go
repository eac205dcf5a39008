package model

import "time"

// Backend kinds.
const (
	BackendKindHTTP = "http"
	BackendKindFake = "fake"
)

// AppConfig is the application configuration.
type AppConfig struct {
	Backend        BackendConfig
	DBPath         string
	PlateauCeiling int
	Initialize     TaskTuning
	ModelChange    TaskTuning
	Download       TaskTuning
	Fake           FakeBackendConfig
}

// BackendConfig selects and configures the backend client.
type BackendConfig struct {
	Kind           string
	URL            string
	RequestTimeout time.Duration
}

// TaskTuning are the polling settings of a task kind.
type TaskTuning struct {
	Interval time.Duration
	MaxTicks int
	Deadline time.Duration
}

// FakeBackendConfig configures the simulated backend.
type FakeBackendConfig struct {
	StepDelay time.Duration
	Chapters  int
}

// DefaultAppConfig returns the configuration used when there is no config file.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Backend: BackendConfig{
			Kind:           BackendKindHTTP,
			URL:            "http://127.0.0.1:34115",
			RequestTimeout: 10 * time.Second,
		},
		PlateauCeiling: 99,
		Initialize:     TaskTuning{Interval: time.Second, Deadline: 30 * time.Minute},
		ModelChange:    TaskTuning{Interval: 2 * time.Second, Deadline: 30 * time.Minute},
		Download:       TaskTuning{Interval: time.Second},
		Fake:           FakeBackendConfig{StepDelay: 300 * time.Millisecond, Chapters: 20},
	}
}
