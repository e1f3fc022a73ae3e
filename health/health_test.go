package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eegstreams/component"
)

type fakeComponent struct {
	name    string
	tracker component.Tracker
}

func (f *fakeComponent) Meta() component.Metadata {
	return component.Metadata{Name: f.name, Type: "input", Description: "fake " + f.name}
}
func (f *fakeComponent) Health() component.HealthStatus  { return f.tracker.Health() }
func (f *fakeComponent) DataFlow() component.FlowMetrics { return f.tracker.DataFlow() }

func TestStatusPredicates(t *testing.T) {
	assert.True(t, NewHealthy("a", "").IsHealthy())
	assert.True(t, NewHealthy("a", "").Healthy)
	assert.True(t, NewDegraded("a", "").IsDegraded())
	assert.False(t, NewDegraded("a", "").Healthy)
	assert.True(t, NewUnhealthy("a", "").IsUnhealthy())
	assert.False(t, Status{}.IsHealthy())
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		subs     []Status
		expected string
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StatusHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StatusDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("system", tt.subs)
			assert.Equal(t, tt.expected, got.Status)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestFromComponent(t *testing.T) {
	c := &fakeComponent{name: "udp-inlet"}

	assert.Equal(t, StatusUnhealthy, FromComponent(c).Status)

	c.tracker.Start()
	s := FromComponent(c)
	assert.Equal(t, StatusHealthy, s.Status)
	assert.Equal(t, "fake udp-inlet", s.Message)
	require.NotNil(t, s.Metrics)

	c.tracker.RecordError(errors.New("read udp 10.0.0.5:16571: connection refused"))
	s = FromComponent(c)
	assert.Equal(t, StatusDegraded, s.Status)
	assert.NotContains(t, s.Message, "10.0.0.5")
	assert.Equal(t, 1, s.Metrics.ErrorCount)
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"unix path", "open /home/lab/Data/recording.csv: permission denied", "open [PATH]: permission denied"},
		{"nats url", "cannot connect to nats://localhost:4222", "cannot connect to [URL]"},
		{"ip address", "no route to 192.168.1.20", "no route to [IP]"},
		{"credential", "auth failed token=abc123", "auth failed [REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeErrorMessage(tt.input))
		})
	}
}

func TestMonitorCheck(t *testing.T) {
	mon := NewMonitor("eegstreams")
	inlet := &fakeComponent{name: "inlet"}
	recorder := &fakeComponent{name: "recorder"}
	inlet.tracker.Start()
	recorder.tracker.Start()

	mon.Register(recorder, inlet, nil)
	mon.Update("session", NewHealthy("", "recording"))

	got := mon.Check()
	assert.Equal(t, StatusHealthy, got.Status)
	require.Len(t, got.SubStatuses, 3)
	assert.Equal(t, "inlet", got.SubStatuses[0].Component)
	assert.Equal(t, "recorder", got.SubStatuses[1].Component)
	assert.Equal(t, "session", got.SubStatuses[2].Component)

	session, ok := mon.Get("session")
	require.True(t, ok)
	assert.Equal(t, "recording", session.Message)

	recorder.tracker.Fail(errors.New("disk full"))
	assert.Equal(t, StatusUnhealthy, mon.Check().Status)
}

func TestReport(t *testing.T) {
	c := &fakeComponent{name: "window"}
	c.tracker.Start()
	got := Report("eegstreams", c, nil)
	assert.Equal(t, StatusHealthy, got.Status)
	assert.Len(t, got.SubStatuses, 1)
}

func TestHandler(t *testing.T) {
	mon := NewMonitor("eegstreams")
	c := &fakeComponent{name: "recorder"}
	c.tracker.Start()
	mon.Register(c)

	rec := httptest.NewRecorder()
	Handler(mon).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, StatusHealthy, got.Status)
	require.Len(t, got.SubStatuses, 1)
	assert.Equal(t, "recorder", got.SubStatuses[0].Component)

	c.tracker.Fail(errors.New("write failed"))
	rec = httptest.NewRecorder()
	Handler(mon).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
