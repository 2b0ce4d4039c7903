package transmission

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jkaberg/verano-hass/internal/climate"
	"github.com/jkaberg/verano-hass/internal/emodul"
	"github.com/jkaberg/verano-hass/internal/mqtt"
)

// Command topic suffixes.
const (
	cmdTemperature = "temperature"
	cmdFanMode     = "fan_mode"
	cmdPresetMode  = "preset_mode"
	cmdMode        = "mode"
)

// MQTTTransmitter bridges one controller module to a Home Assistant climate
// entity: it publishes discovery, state and availability and turns command
// topic writes into emodul commands.
type MQTTTransmitter struct {
	client          Publisher
	controller      Controller
	reauth          Reauthenticator
	module          emodul.Module
	moduleIndex     int
	deviceID        string
	discoveryPrefix string
	logger          *logrus.Logger

	commands chan command

	mu         sync.Mutex
	discovered bool
	last       *climate.State
	preset     string
}

// HAClimateConfig is the Home Assistant MQTT discovery payload of a climate entity.
type HAClimateConfig struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	AvailabilityTopic string   `json:"availability_topic"`
	Device            HADevice `json:"device"`

	CurrentTemperatureTopic    string `json:"current_temperature_topic"`
	CurrentTemperatureTemplate string `json:"current_temperature_template"`
	TemperatureStateTopic      string `json:"temperature_state_topic"`
	TemperatureStateTemplate   string `json:"temperature_state_template"`
	TemperatureCommandTopic    string `json:"temperature_command_topic"`

	ModeStateTopic    string   `json:"mode_state_topic"`
	ModeStateTemplate string   `json:"mode_state_template"`
	ModeCommandTopic  string   `json:"mode_command_topic"`
	Modes             []string `json:"modes"`

	ActionTopic    string `json:"action_topic"`
	ActionTemplate string `json:"action_template"`

	FanModeStateTopic    string   `json:"fan_mode_state_topic"`
	FanModeStateTemplate string   `json:"fan_mode_state_template"`
	FanModeCommandTopic  string   `json:"fan_mode_command_topic"`
	FanModes             []string `json:"fan_modes"`

	PresetModeStateTopic    string   `json:"preset_mode_state_topic"`
	PresetModeValueTemplate string   `json:"preset_mode_value_template"`
	PresetModeCommandTopic  string   `json:"preset_mode_command_topic"`
	PresetModes             []string `json:"preset_modes"`

	MinTemp         float64 `json:"min_temp"`
	MaxTemp         float64 `json:"max_temp"`
	TempStep        float64 `json:"temp_step"`
	TemperatureUnit string  `json:"temperature_unit"`
}

// HADevice represents the device information for Home Assistant
type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// statePayload is what goes to the state topic. The preset is not reported
// by the controller, so the last commanded one is echoed.
type statePayload struct {
	*climate.State
	PresetMode string `json:"preset_mode,omitempty"`
}

// NewMQTTTransmitter creates a bridge for one module. reauth may be nil when
// no credentials are configured.
func NewMQTTTransmitter(
	client Publisher,
	controller Controller,
	reauth Reauthenticator,
	module emodul.Module,
	moduleIndex int,
	deviceID, discoveryPrefix string,
	logger *logrus.Logger,
) *MQTTTransmitter {
	return &MQTTTransmitter{
		client:          client,
		controller:      controller,
		reauth:          reauth,
		module:          module,
		moduleIndex:     moduleIndex,
		deviceID:        deviceID,
		discoveryPrefix: discoveryPrefix,
		logger:          logger,
		commands:        make(chan command, 8),
	}
}

func (t *MQTTTransmitter) stateTopic() string {
	return mqtt.StateTopic(t.deviceID, t.module.UDID)
}

func (t *MQTTTransmitter) commandTopic(name string) string {
	return mqtt.CommandTopic(t.deviceID, t.module.UDID, name)
}

// DiscoveryConfig builds the climate discovery payload of the module.
func (t *MQTTTransmitter) DiscoveryConfig() HAClimateConfig {
	state := t.stateTopic()
	name := t.module.Name
	if name == "" {
		name = "Verano"
	}
	return HAClimateConfig{
		Name:              name,
		UniqueID:          fmt.Sprintf("verano_%s_%s", t.deviceID, t.module.UDID),
		AvailabilityTopic: mqtt.AvailabilityTopic(t.deviceID),
		Device: HADevice{
			Identifiers:  []string{fmt.Sprintf("verano_%s_%s", t.deviceID, t.module.UDID)},
			Name:         name,
			Model:        "Verano",
			Manufacturer: "TECH Sterowniki",
			SWVersion:    t.module.Version,
		},

		CurrentTemperatureTopic:    state,
		CurrentTemperatureTemplate: "{{ value_json.current_temperature }}",
		TemperatureStateTopic:      state,
		TemperatureStateTemplate:   "{{ value_json.temperature }}",
		TemperatureCommandTopic:    t.commandTopic(cmdTemperature),

		ModeStateTopic:    state,
		ModeStateTemplate: "{{ value_json.mode }}",
		ModeCommandTopic:  t.commandTopic(cmdMode),
		Modes:             climate.Modes,

		ActionTopic:    state,
		ActionTemplate: "{{ value_json.action | default('idle') }}",

		FanModeStateTopic:    state,
		FanModeStateTemplate: "{{ value_json.fan_mode | default('auto') }}",
		FanModeCommandTopic:  t.commandTopic(cmdFanMode),
		FanModes:             emodul.FanModes,

		PresetModeStateTopic:    state,
		PresetModeValueTemplate: "{{ value_json.preset_mode | default('None') }}",
		PresetModeCommandTopic:  t.commandTopic(cmdPresetMode),
		PresetModes:             emodul.PresetNames(),

		MinTemp:         climate.MinTemp,
		MaxTemp:         climate.MaxTemp,
		TempStep:        climate.TempStep,
		TemperatureUnit: "C",
	}
}

// publishDiscovery publishes the retained discovery config once per process.
func (t *MQTTTransmitter) publishDiscovery() error {
	t.mu.Lock()
	done := t.discovered
	t.mu.Unlock()
	if done {
		return nil
	}

	topic := mqtt.DiscoveryTopic(t.discoveryPrefix, "climate", t.deviceID, t.module.UDID)
	payload, err := json.Marshal(t.DiscoveryConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal discovery config: %w", err)
	}
	if err := t.client.Publish(topic, payload, true); err != nil {
		return fmt.Errorf("failed to publish discovery config to %s: %w", topic, err)
	}

	t.mu.Lock()
	t.discovered = true
	t.mu.Unlock()
	t.logger.WithFields(logrus.Fields{
		"module": t.module.UDID,
		"topic":  topic,
	}).Info("Published climate discovery config")
	return nil
}

// Transmit publishes the state of the module
func (t *MQTTTransmitter) Transmit(_ context.Context, state *climate.State) error {
	if state == nil {
		return nil
	}
	if !t.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	if err := t.publishDiscovery(); err != nil {
		// Log error but don't block transmission
		t.logger.WithError(err).Error("Failed to publish Home Assistant discovery config")
	}

	t.mu.Lock()
	t.last = state
	t.mu.Unlock()

	if err := t.publishState(state); err != nil {
		return err
	}
	if err := t.publishAvailability(true); err != nil {
		return fmt.Errorf("failed to publish availability: %w", err)
	}
	t.logger.Debug("State transmitted successfully")
	return nil
}

func (t *MQTTTransmitter) publishState(state *climate.State) error {
	t.mu.Lock()
	payload, err := json.Marshal(statePayload{State: state, PresetMode: t.preset})
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to build state payload: %w", err)
	}

	topic := t.stateTopic()
	if err := t.client.Publish(topic, payload, true); err != nil {
		return fmt.Errorf("failed to publish state to %s: %w", topic, err)
	}
	t.logger.WithFields(logrus.Fields{
		"topic":   topic,
		"payload": string(payload),
	}).Info("Published thermostat state")
	return nil
}

func (t *MQTTTransmitter) publishAvailability(online bool) error {
	payload := "online"
	if !online {
		payload = "offline"
	}
	topic := mqtt.AvailabilityTopic(t.deviceID)
	if err := t.client.Publish(topic, []byte(payload), true); err != nil {
		return fmt.Errorf("failed to publish availability to %s: %w", topic, err)
	}
	return nil
}

// IsConnected checks if the MQTT client is connected
func (t *MQTTTransmitter) IsConnected() bool {
	return t.client.IsConnected()
}
