package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/jkaberg/verano-hass/internal/app"
	"github.com/jkaberg/verano-hass/internal/climate"
	"github.com/jkaberg/verano-hass/internal/config"
	"github.com/jkaberg/verano-hass/internal/emodul"
	"github.com/jkaberg/verano-hass/internal/metrics"
	"github.com/jkaberg/verano-hass/internal/mqtt"
	"github.com/jkaberg/verano-hass/internal/netutil"
	"github.com/jkaberg/verano-hass/internal/transmission"
)

// version is injected at build time via ldflags
var version = "dev"

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, dumpMode, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := setupLogger(cfg.Verbose || dumpMode)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("Shutdown signal received")
		cancel()
	}()

	var stats *metrics.Metrics
	opts := []emodul.Option{
		emodul.WithBaseURL(cfg.BaseURL),
		emodul.WithHTTPClient(netutil.NewHTTPClient(cfg.APITimeout, logger)),
		emodul.WithUpdateInterval(cfg.UpdateInterval),
	}
	if cfg.HasMetrics() {
		stats = metrics.New()
		opts = append(opts, emodul.WithObserver(stats))
	}
	if cfg.HasToken() {
		opts = append(opts, emodul.WithSession(cfg.UserID, cfg.Token))
	}
	client := emodul.NewClient(logger, opts...)

	reauth := reauthenticator(client, cfg, logger)
	if !client.Authenticated() {
		if err := reauth(ctx); err != nil {
			logger.WithError(err).Fatal("emodul login failed")
		}
	}

	if dumpMode {
		if err := dump(ctx, client, os.Stdout); err != nil {
			logger.WithError(err).Fatal("Dump failed")
		}
		return
	}

	modules, err := client.ListModules(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Failed to list emodul modules")
	}
	module, err := selectModule(modules, cfg.ModuleUDID)
	if err != nil {
		logger.WithError(err).Fatal("No usable module")
	}
	moduleIndex := cfg.ModuleIndex
	if moduleIndex < 0 {
		moduleIndex = client.SelectedModuleIndex()
	}

	logFields := logrus.Fields{
		"version":      version,
		"device_id":    cfg.DeviceID,
		"module":       module.UDID,
		"module_name":  module.Name,
		"module_index": moduleIndex,
		"update":       cfg.UpdateInterval,
		"poll":         cfg.PollInterval,
	}
	if cfg.ForceUpdateInterval > 0 {
		logFields["force_update_int"] = cfg.ForceUpdateInterval
	}
	logger.WithFields(logFields).Info("Starting VERANO-HASS")

	deps := app.Deps{
		Source:  client,
		Metrics: stats,
		Layout:  climate.DefaultLayout(),
	}
	if cfg.HasMQTT() {
		mqttClient, err := mqtt.NewClient(cfg.MQTTUrl, cfg.DeviceID, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create MQTT client")
		}
		defer mqttClient.Disconnect(250)
		var tokenReauth transmission.Reauthenticator
		if cfg.HasCredentials() {
			tokenReauth = reauth
		}
		deps.Bridge = transmission.NewMQTTTransmitter(mqttClient, client, tokenReauth, module, moduleIndex,
			cfg.DeviceID, cfg.DiscoveryPrefix, logger)
		logger.Info("MQTT transmitter ready")
	} else {
		logger.Warn("No MQTT broker configured; state will only be logged")
	}

	if err := app.Run(ctx, cfg, module.UDID, deps, logger); err != nil {
		logger.WithError(err).Error("VERANO-HASS stopped with error")
		os.Exit(1)
	}
	logger.Info("VERANO-HASS stopped")
}

// reauthenticator logs in with the configured credentials.
func reauthenticator(client *emodul.Client, cfg *config.Config, logger *logrus.Logger) transmission.Reauthenticator {
	return func(ctx context.Context) error {
		if !cfg.HasCredentials() {
			return errors.New("no emodul credentials configured")
		}
		ok, err := client.Authenticate(ctx, cfg.Username, cfg.Password)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("emodul rejected the credentials")
		}
		logger.WithField("user_id", client.UserID()).Info("Authenticated with emodul")
		return nil
	}
}

// selectModule picks the configured module, or the first one.
func selectModule(modules []emodul.Module, udid string) (emodul.Module, error) {
	if len(modules) == 0 {
		return emodul.Module{}, errors.New("account has no modules")
	}
	if udid == "" {
		return modules[0], nil
	}
	for _, m := range modules {
		if m.UDID == udid {
			return m, nil
		}
	}
	return emodul.Module{}, fmt.Errorf("module %s not found among %d modules", udid, len(modules))
}

type dumpedModule struct {
	Module emodul.Module             `json:"module"`
	Zones  map[int]emodul.ZoneRecord `json:"zones,omitempty"`
	Tiles  map[int]emodul.Tile       `json:"tiles,omitempty"`
	State  *climate.State            `json:"state,omitempty"`
	Error  string                    `json:"error,omitempty"`
}

// dump prints every module of the account with its decoded data.
func dump(ctx context.Context, client *emodul.Client, w io.Writer) error {
	modules, err := client.ListModules(ctx)
	if err != nil {
		return err
	}
	out := make([]dumpedModule, 0, len(modules))
	for _, m := range modules {
		d := dumpedModule{Module: m}
		tiles, err := client.Tiles(ctx, m.UDID)
		if err != nil {
			d.Error = err.Error()
		}
		zones, _ := client.Zones(ctx, m.UDID)
		d.Tiles, d.Zones = tiles, zones
		if len(tiles) > 0 {
			d.State = climate.FromTiles(tiles, climate.DefaultLayout())
			d.State.ApplyZones(zones)
		}
		out = append(out, d)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func setupLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
