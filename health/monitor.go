package health

import (
	"slices"
	"sync"
	"time"

	"github.com/c360/eegstreams/component"
)

// Monitor tracks the components of a running session and any explicitly set
// statuses. It is safe for concurrent use; the HTTP handler reads it while
// the session adds components.
type Monitor struct {
	system string

	mu         sync.RWMutex
	components []component.Discoverable
	statuses   map[string]Status
}

// NewMonitor creates a new health monitor for the named system
func NewMonitor(system string) *Monitor {
	return &Monitor{
		system:   system,
		statuses: make(map[string]Status),
	}
}

// Register adds components whose live reports are included in Check.
func (m *Monitor) Register(components ...component.Discoverable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range components {
		if c != nil {
			m.components = append(m.components, c)
		}
	}
}

// Update sets an explicit status for a named part of the system, such as
// the session state.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// Get retrieves the explicit status for a name
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[name]
	return status, ok
}

// Check aggregates explicit statuses and registered component reports.
// Sub-statuses are ordered by component name.
func (m *Monitor) Check() Status {
	m.mu.RLock()
	subs := make([]Status, 0, len(m.statuses)+len(m.components))
	for _, s := range m.statuses {
		subs = append(subs, s)
	}
	components := slices.Clone(m.components)
	m.mu.RUnlock()

	for _, c := range components {
		subs = append(subs, FromComponent(c))
	}
	slices.SortFunc(subs, func(a, b Status) int {
		switch {
		case a.Component < b.Component:
			return -1
		case a.Component > b.Component:
			return 1
		default:
			return 0
		}
	})
	return Aggregate(m.system, subs)
}
