package config

import "time"

// Central place for all application-wide timing constants and other defaults.
// Changing a value here immediately affects all components that import
// github.com/jkaberg/verano-hass/internal/config.

const (
	DefaultBaseURL = "https://emodul.eu/"

	// Polling / caching
	DefaultUpdateInterval = 30 * time.Second // emodul module cache lifetime
	DefaultPollInterval   = 35 * time.Second // poller reads the cache; longer than the cache lifetime so every poll refreshes

	// Operation time-outs (to avoid blocking goroutines)
	DefaultAPITimeout = 10 * time.Second // emodul HTTP call
	MQTTTimeout       = 5 * time.Second  // MQTT publish / subscribe
	CommandTimeout    = 15 * time.Second // one MQTT command incl. re-auth

	// Scheduler tick for the transmit loop
	SchedulerTick = time.Second
)
