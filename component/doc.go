// Package component defines the reporting surface shared by pipeline components.
//
// Every input, the acquirer, the window and the recorder implement Discoverable
// so the health endpoint can list them with their metadata, health and data
// flow. Tracker holds the counters behind those reports:
//
//	type Recorder struct {
//	    tracker component.Tracker
//	    ...
//	}
//
//	func (r *Recorder) Health() component.HealthStatus { return r.tracker.Health() }
package component
