package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/climate-controller/internal/metrics"
	"github.com/thatsimonsguy/climate-controller/internal/model"
	"github.com/thatsimonsguy/climate-controller/internal/status"
)

func setupServer(t *testing.T) (*Server, *status.Tracker, *metrics.Metrics) {
	t.Helper()
	start := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	tracker := status.NewTracker(start)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, nil)

	s := NewServer(tracker, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.now = func() time.Time { return start.Add(time.Hour) }
	return s, tracker, m
}

func observe(tracker *status.Tracker, m *metrics.Metrics, ev model.UnitEvent) {
	tracker.Observe(ev)
	m.Observe(ev)
}

func TestGetUnits(t *testing.T) {
	s, tracker, m := setupServer(t)
	cmd := model.Command{Kind: model.DeviceSwitch, On: true}
	observe(tracker, m, model.UnitEvent{
		Snapshot:   model.UnitSnapshot{Unit: "office", Device: model.Device{ID: "switch.office", Kind: model.DeviceSwitch}, Target: cmd},
		Dispatched: &cmd,
	})
	observe(tracker, m, model.UnitEvent{
		Snapshot: model.UnitSnapshot{Unit: "bathroom", Device: model.Device{ID: "switch.bathroom", Kind: model.DeviceSwitch}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/units", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var units []model.UnitSnapshot
	require.NoError(t, json.NewDecoder(w.Body).Decode(&units))
	require.Len(t, units, 2)
	assert.Equal(t, "bathroom", units[0].Unit)
	assert.True(t, units[1].Target.On)
}

func TestGetUnit(t *testing.T) {
	s, tracker, m := setupServer(t)
	observe(tracker, m, model.UnitEvent{Snapshot: model.UnitSnapshot{Unit: "office", HeatingLimit: 19}})

	tests := []struct {
		name   string
		method string
		path   string
		code   int
	}{
		{"Existing unit", http.MethodGet, "/api/units/office", http.StatusOK},
		{"Unknown unit", http.MethodGet, "/api/units/attic", http.StatusNotFound},
		{"Missing name", http.MethodGet, "/api/units/", http.StatusNotFound},
		{"Nested path", http.MethodGet, "/api/units/office/mode", http.StatusNotFound},
		{"Wrong method", http.MethodPut, "/api/units/office", http.StatusMethodNotAllowed},
		{"Preflight", http.MethodOptions, "/api/units/office", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	s, tracker, m := setupServer(t)
	cmd := model.Command{Kind: model.DeviceSwitch}
	observe(tracker, m, model.UnitEvent{Snapshot: model.UnitSnapshot{Unit: "office"}, Dispatched: &cmd})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var h status.Health
	require.NoError(t, json.NewDecoder(w.Body).Decode(&h))
	assert.Equal(t, "1h0m0s", h.Uptime)

	observe(tracker, m, model.UnitEvent{Snapshot: model.UnitSnapshot{Unit: "office"}, Dispatched: &cmd, Err: errors.New("401")})
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, tracker, m := setupServer(t)
	observe(tracker, m, model.UnitEvent{Snapshot: model.UnitSnapshot{Unit: "office", HeatingLimit: 19}})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `climate_heating_limit_celsius{unit="office"} 19`)
}
