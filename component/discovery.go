package component

import (
	"time"
)

// Discoverable is implemented by every pipeline component that reports
// metadata, health and data flow to the health endpoint.
type Discoverable interface {
	// Meta returns basic component information
	Meta() Metadata

	// Health returns current health status
	Health() HealthStatus

	// DataFlow returns current data flow metrics
	DataFlow() FlowMetrics
}

// Metadata describes a component
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "input", "acquirer", "buffer", "output"
	Description string `json:"description"`
	Version     string `json:"version"`
}

// HealthStatus describes the current health of a component
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}

// FlowMetrics describes the current data flow through a component
type FlowMetrics struct {
	SamplesPerSecond float64   `json:"samples_per_second"`
	BytesPerSecond   float64   `json:"bytes_per_second"`
	ErrorRate        float64   `json:"error_rate"`
	LastActivity     time.Time `json:"last_activity"`
}
