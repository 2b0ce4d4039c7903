package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/jkaberg/verano-hass/internal/climate"
)

// Metrics holds the Prometheus collectors of the bridge. It implements
// emodul.Observer.
type Metrics struct {
	registry *prometheus.Registry

	refreshTotal     *prometheus.CounterVec
	lastRefresh      *prometheus.GaugeVec
	commandTotal     *prometheus.CounterVec
	languageStrings  prometheus.Gauge
	temperature      *prometheus.GaugeVec
	heating          *prometheus.GaugeVec
	lastTransmitUnix prometheus.Gauge
}

// New creates the collectors on a private registry, so the default Go
// runtime metrics stay out of the output.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verano_cache_refresh_total",
				Help: "Module cache refreshes by result",
			},
			[]string{"result"},
		),
		lastRefresh: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "verano_cache_last_refresh_timestamp_seconds",
				Help: "Unix timestamp of the last successful module refresh",
			},
			[]string{"module"},
		),
		commandTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verano_command_total",
				Help: "Control commands sent to emodul by command and result",
			},
			[]string{"command", "result"},
		),
		languageStrings: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "verano_language_strings",
				Help: "Entries in the installed language table",
			},
		),
		temperature: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "verano_temperature_celsius",
				Help: "Thermostat temperature in Celsius",
			},
			[]string{"module", "kind"},
		),
		heating: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "verano_heating",
				Help: "1 while the fan output is driving heat, 0 otherwise",
			},
			[]string{"module"},
		),
		lastTransmitUnix: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "verano_last_transmit_timestamp_seconds",
				Help: "Unix timestamp of the last state published to MQTT",
			},
		),
	}
	m.registry.MustRegister(
		m.refreshTotal,
		m.lastRefresh,
		m.commandTotal,
		m.languageStrings,
		m.temperature,
		m.heating,
		m.lastTransmitUnix,
	)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RefreshCompleted counts a module refresh.
func (m *Metrics) RefreshCompleted(module string, err error) {
	m.refreshTotal.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.lastRefresh.WithLabelValues(module).SetToCurrentTime()
	}
}

// CommandCompleted counts a control command.
func (m *Metrics) CommandCompleted(command string, err error) {
	m.commandTotal.WithLabelValues(command, result(err)).Inc()
}

// LanguageStringsLoaded records the language table size.
func (m *Metrics) LanguageStringsLoaded(n int) {
	m.languageStrings.Set(float64(n))
}

// ObserveState exports the projected thermostat state.
func (m *Metrics) ObserveState(module string, s *climate.State) {
	if s == nil {
		return
	}
	if s.CurrentTemperature != nil {
		m.temperature.WithLabelValues(module, "current").Set(*s.CurrentTemperature)
	}
	if s.TargetTemperature != nil {
		m.temperature.WithLabelValues(module, "target").Set(*s.TargetTemperature)
	}
	heating := 0.0
	if s.Action == climate.ActionHeating {
		heating = 1
	}
	m.heating.WithLabelValues(module).Set(heating)
}

// Transmitted records a successful MQTT publication.
func (m *Metrics) Transmitted(at time.Time) {
	m.lastTransmitUnix.Set(float64(at.Unix()))
}

// Handler serves /metrics and /health.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Serve runs the metrics server on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *logrus.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("Serving Prometheus metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
