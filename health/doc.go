// Package health turns component reports into the JSON document served on
// /health.
//
// A Monitor holds the session's components and explicit statuses:
//
//	mon := health.NewMonitor("eegstreams")
//	mon.Register(inlet, acquirer, recorder)
//	mon.Update("session", health.NewHealthy("session", "recording"))
//	status := mon.Check()
//
// A component with a recorded error stays healthy but reports as degraded.
// Error text is sanitized before it is exposed: URLs, file paths, IP
// addresses, ports and credentials are replaced with placeholders.
package health
