package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkaberg/verano-hass/internal/climate"
	"github.com/jkaberg/verano-hass/internal/emodul"
)

var _ emodul.Observer = (*Metrics)(nil)

func TestRefreshCounters(t *testing.T) {
	m := New()
	m.RefreshCompleted("a1b2", nil)
	m.RefreshCompleted("a1b2", nil)
	m.RefreshCompleted("a1b2", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.refreshTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshTotal.WithLabelValues("error")))
	assert.InDelta(t, float64(time.Now().Unix()), testutil.ToFloat64(m.lastRefresh.WithLabelValues("a1b2")), 5)
}

func TestCommandCounters(t *testing.T) {
	m := New()
	m.CommandCompleted("set_const_temp", nil)
	m.CommandCompleted("set_fan_mode", errors.New("401"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandTotal.WithLabelValues("set_const_temp", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandTotal.WithLabelValues("set_fan_mode", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.commandTotal.WithLabelValues("set_fan_mode", "success")))
}

func TestLanguageStrings(t *testing.T) {
	m := New()
	m.LanguageStringsLoaded(1234)
	assert.Equal(t, 1234.0, testutil.ToFloat64(m.languageStrings))
}

func TestObserveState(t *testing.T) {
	m := New()
	cur, target := 21.5, 22.0
	m.ObserveState("a1b2", &climate.State{
		CurrentTemperature: &cur,
		TargetTemperature:  &target,
		Action:             climate.ActionHeating,
	})
	m.ObserveState("a1b2", nil)

	assert.Equal(t, 21.5, testutil.ToFloat64(m.temperature.WithLabelValues("a1b2", "current")))
	assert.Equal(t, 22.0, testutil.ToFloat64(m.temperature.WithLabelValues("a1b2", "target")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.heating.WithLabelValues("a1b2")))

	m.ObserveState("a1b2", &climate.State{Action: climate.ActionIdle})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.heating.WithLabelValues("a1b2")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.CommandCompleted("set_zone", nil)
	m.Transmitted(time.Unix(1700000000, 0))
	ts := httptest.NewServer(m.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `verano_command_total{command="set_zone",result="success"} 1`)
	assert.Contains(t, string(body), "verano_last_transmit_timestamp_seconds 1.7e+09")
	assert.NotContains(t, string(body), "go_goroutines")
}
