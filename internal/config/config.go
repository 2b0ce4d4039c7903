package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all configuration options for the VERANO-HASS application
type Config struct {
	// emodul.eu account
	Username string `json:"username"` // emodul.eu login
	Password string `json:"password"` // emodul.eu password
	UserID   string `json:"user_id"`  // pre-issued user id (skips login when set with Token)
	Token    string `json:"token"`    // pre-issued bearer token

	// Module selection
	ModuleUDID  string `json:"module_udid"`  // controller udid, first module when empty
	ModuleIndex int    `json:"module_index"` // module_index sent with control data, -1 = from login

	// API Configuration
	BaseURL        string        `json:"base_url"`        // emodul API root, must end with "/"
	UpdateInterval time.Duration `json:"update_interval"` // cache staleness interval
	PollInterval   time.Duration `json:"poll_interval"`   // how often the poller reads the cache
	APITimeout     time.Duration `json:"api_timeout"`     // HTTP request timeout

	// MQTT Configuration
	MQTTUrl         string `json:"mqtt_url"`         // MQTT URL (supports both WebSocket and standard MQTT)
	DiscoveryPrefix string `json:"discovery_prefix"` // Home Assistant discovery prefix

	// Device Configuration
	DeviceID string `json:"device_id"` // Unique device identifier

	// Application Configuration
	Verbose             bool          `json:"verbose"`               // Enable verbose logging
	MetricsAddr         string        `json:"metrics_addr"`          // Prometheus listen address, disabled when empty
	ForceUpdateInterval time.Duration `json:"force_update_interval"` // republish unchanged state after this long, 0 = never
}

// GetDefaultConfig returns a configuration with sensible defaults
func GetDefaultConfig() *Config {
	return &Config{
		ModuleIndex:     -1,
		BaseURL:         DefaultBaseURL,
		UpdateInterval:  DefaultUpdateInterval,
		PollInterval:    DefaultPollInterval,
		APITimeout:      DefaultAPITimeout,
		DiscoveryPrefix: "homeassistant",
		DeviceID:        "verano",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("device ID is required")
	}

	if !c.HasCredentials() && !c.HasToken() {
		return fmt.Errorf("either username/password or user ID/token are required")
	}
	if (c.UserID == "") != (c.Token == "") {
		return fmt.Errorf("user ID and token must be given together")
	}

	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL must be http:// or https://")
	}
	if !strings.HasSuffix(c.BaseURL, "/") {
		return fmt.Errorf("base URL must end with a slash")
	}

	// MQTT validation - support both WebSocket and standard MQTT protocols
	if c.MQTTUrl != "" {
		if !strings.HasPrefix(c.MQTTUrl, "ws://") &&
			!strings.HasPrefix(c.MQTTUrl, "wss://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtt://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtts://") {
			return fmt.Errorf("MQTT URL must use supported protocol (ws://, wss://, mqtt://, or mqtts://)")
		}
	}

	if c.UpdateInterval <= 0 {
		return fmt.Errorf("update interval must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.ForceUpdateInterval < 0 {
		return fmt.Errorf("force update interval must not be negative")
	}

	// Set defaults for invalid values
	if c.APITimeout <= 0 {
		c.APITimeout = DefaultAPITimeout
	}

	return nil
}

// HasCredentials returns true if a username and password are configured
func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// HasToken returns true if a pre-issued session is configured
func (c *Config) HasToken() bool {
	return c.UserID != "" && c.Token != ""
}

// HasMQTT returns true if MQTT is configured
func (c *Config) HasMQTT() bool {
	return c.MQTTUrl != ""
}

// HasMetrics returns true if the metrics endpoint is enabled
func (c *Config) HasMetrics() bool {
	return c.MetricsAddr != ""
}
