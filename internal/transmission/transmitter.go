package transmission

import (
	"context"
	"encoding/json"

	"github.com/jkaberg/verano-hass/internal/climate"
	"github.com/jkaberg/verano-hass/internal/mqtt"
)

// Transmitter defines the interface for transmitting thermostat state
type Transmitter interface {
	Transmit(ctx context.Context, state *climate.State) error
	IsConnected() bool
}

// Publisher is the broker side of the bridge; *mqtt.Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Controller issues thermostat commands; *emodul.Client implements it.
type Controller interface {
	SetConstTemp(ctx context.Context, moduleUDID string, moduleIndex int, celsius float64) (json.RawMessage, error)
	SetPresetMode(ctx context.Context, moduleUDID string, moduleIndex int, preset string) (json.RawMessage, error)
	SetFanMode(ctx context.Context, moduleUDID string, moduleIndex int, fan string) (json.RawMessage, error)
	SetZoneState(ctx context.Context, moduleUDID string, zoneID int, on bool) (json.RawMessage, error)
}

// Reauthenticator logs in again after the controller reported an
// authorization failure.
type Reauthenticator func(ctx context.Context) error
