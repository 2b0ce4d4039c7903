package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jkaberg/verano-hass/internal/config"
)

// parseFlags builds the configuration from args, falling back to
// VERANO_HASS_* environment variables for every flag.
func parseFlags(args []string) (*config.Config, bool, error) {
	cfg := config.GetDefaultConfig()
	fs := flag.NewFlagSet("verano-hass", flag.ContinueOnError)

	showVersion := fs.Bool("version", false, "Show version and exit")
	dumpMode := fs.Bool("dump", false, "Print decoded tiles and zones of every module as JSON and exit")

	fs.StringVar(&cfg.Username, "username", getEnv("VERANO_HASS_USERNAME", cfg.Username), "emodul.eu username")
	fs.StringVar(&cfg.Password, "password", getEnv("VERANO_HASS_PASSWORD", cfg.Password), "emodul.eu password")
	fs.StringVar(&cfg.UserID, "user-id", getEnv("VERANO_HASS_USER_ID", cfg.UserID), "Pre-issued emodul user id (with -token)")
	fs.StringVar(&cfg.Token, "token", getEnv("VERANO_HASS_TOKEN", cfg.Token), "Pre-issued emodul bearer token (with -user-id)")
	fs.StringVar(&cfg.ModuleUDID, "module", getEnv("VERANO_HASS_MODULE", cfg.ModuleUDID), "Controller module udid (default: first module)")
	fs.StringVar(&cfg.BaseURL, "base-url", getEnv("VERANO_HASS_BASE_URL", cfg.BaseURL), "emodul API root")
	fs.StringVar(&cfg.MQTTUrl, "mqtt-url", getEnv("VERANO_HASS_MQTT_URL", cfg.MQTTUrl), "MQTT URL")
	fs.StringVar(&cfg.DiscoveryPrefix, "discovery-prefix", getEnv("VERANO_HASS_DISCOVERY_PREFIX", cfg.DiscoveryPrefix), "HA discovery prefix")
	fs.StringVar(&cfg.DeviceID, "device-id", getEnv("VERANO_HASS_DEVICE_ID", cfg.DeviceID), "Device identifier")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", getEnv("VERANO_HASS_METRICS_ADDR", cfg.MetricsAddr), "Prometheus listen address, e.g. :9108 (disabled when empty)")
	fs.BoolVar(&cfg.Verbose, "verbose", getEnv("VERANO_HASS_VERBOSE", "false") == "true", "Verbose logging")

	moduleIndexStr := fs.String("module-index", getEnv("VERANO_HASS_MODULE_INDEX", ""), "module_index sent with control data (default: from login)")
	updateStr := fs.String("update-interval", getEnv("VERANO_HASS_UPDATE_INTERVAL", ""), "Module cache lifetime (e.g. 30s)")
	pollStr := fs.String("poll-interval", getEnv("VERANO_HASS_POLL_INTERVAL", ""), "How often the cache is read; keep it above -update-interval or polls hit the cache (e.g. 35s)")
	timeoutStr := fs.String("api-timeout", getEnv("VERANO_HASS_API_TIMEOUT", ""), "emodul HTTP timeout (e.g. 10s)")
	forceStr := fs.String("force-update-interval", getEnv("VERANO_HASS_FORCE_UPDATE_INTERVAL", ""), "Republish unchanged state at this interval (e.g. 10m, 0 = disabled)")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	if *showVersion {
		fmt.Printf("verano-hass %s\n", version)
		os.Exit(0)
	}

	if *moduleIndexStr != "" {
		v, err := strconv.Atoi(*moduleIndexStr)
		if err != nil {
			return nil, false, fmt.Errorf("invalid module index %q", *moduleIndexStr)
		}
		cfg.ModuleIndex = v
	}

	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"update interval", *updateStr, &cfg.UpdateInterval},
		{"poll interval", *pollStr, &cfg.PollInterval},
		{"api timeout", *timeoutStr, &cfg.APITimeout},
		{"force update interval", *forceStr, &cfg.ForceUpdateInterval},
	} {
		if d.raw == "" {
			continue
		}
		v, err := parseDuration(d.raw)
		if err != nil {
			return nil, false, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = v
	}

	return cfg, *dumpMode, nil
}

// parseDuration accepts Go durations and plain seconds.
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return d, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("bad duration %q", s)
	}
	return time.Duration(v) * time.Second, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
