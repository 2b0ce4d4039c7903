package transmission

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jkaberg/verano-hass/internal/climate"
	"github.com/jkaberg/verano-hass/internal/emodul"
	"github.com/jkaberg/verano-hass/internal/mqtt"
)

const (
	device = "home"
	udid   = "a1b2c3d4"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type fakeBroker struct {
	mu        sync.Mutex
	connected bool
	messages  []published
	handlers  map[string]mqtt.MessageHandler
	failOn    string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) Publish(topic string, payload []byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if topic == b.failOn {
		return errors.New("broker down")
	}
	b.messages = append(b.messages, published{topic, payload, retained})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) deliver(topic, payload string) bool {
	b.mu.Lock()
	h, ok := b.handlers[topic]
	b.mu.Unlock()
	if ok {
		h(topic, []byte(payload))
	}
	return ok
}

func (b *fakeBroker) subscribed(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers) == n
}

func (b *fakeBroker) on(topic string) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, m := range b.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type mockController struct{ mock.Mock }

func (m *mockController) SetConstTemp(ctx context.Context, moduleUDID string, moduleIndex int, celsius float64) (json.RawMessage, error) {
	args := m.Called(moduleUDID, moduleIndex, celsius)
	return nil, args.Error(0)
}

func (m *mockController) SetPresetMode(ctx context.Context, moduleUDID string, moduleIndex int, preset string) (json.RawMessage, error) {
	args := m.Called(moduleUDID, moduleIndex, preset)
	return nil, args.Error(0)
}

func (m *mockController) SetFanMode(ctx context.Context, moduleUDID string, moduleIndex int, fan string) (json.RawMessage, error) {
	args := m.Called(moduleUDID, moduleIndex, fan)
	return nil, args.Error(0)
}

func (m *mockController) SetZoneState(ctx context.Context, moduleUDID string, zoneID int, on bool) (json.RawMessage, error) {
	args := m.Called(moduleUDID, zoneID, on)
	return nil, args.Error(0)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTransmitter(b *fakeBroker, c Controller, reauth Reauthenticator) *MQTTTransmitter {
	module := emodul.Module{ID: 7, UDID: udid, Version: "1.0.14", Name: "Verano"}
	return NewMQTTTransmitter(b, c, reauth, module, 2, device, "homeassistant", quietLogger())
}

func f(v float64) *float64 { return &v }

func sampleState() *climate.State {
	return &climate.State{
		CurrentTemperature: f(21.5),
		TargetTemperature:  f(22),
		Mode:               climate.ModeHeat,
		Action:             climate.ActionHeating,
		FanMode:            climate.FanAuto,
		ZoneID:             1,
		Timestamp:          time.Now(),
	}
}

func decodeState(t *testing.T, m published) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(m.payload, &out))
	return out
}

func TestTransmitPublishesDiscoveryStateAvailability(t *testing.T) {
	b := newFakeBroker()
	tx := newTransmitter(b, &mockController{}, nil)

	require.NoError(t, tx.Transmit(context.Background(), sampleState()))
	require.NoError(t, tx.Transmit(context.Background(), sampleState()))

	disc := b.on("homeassistant/climate/verano_home/a1b2c3d4/config")
	require.Len(t, disc, 1, "discovery is published once")
	assert.True(t, disc[0].retained)

	var cfg HAClimateConfig
	require.NoError(t, json.Unmarshal(disc[0].payload, &cfg))
	assert.Equal(t, "verano_home_a1b2c3d4", cfg.UniqueID)
	assert.Equal(t, "verano/home/a1b2c3d4/state", cfg.CurrentTemperatureTopic)
	assert.Equal(t, "verano/home/a1b2c3d4/set/temperature", cfg.TemperatureCommandTopic)
	assert.Equal(t, "verano/home/a1b2c3d4/set/mode", cfg.ModeCommandTopic)
	assert.Equal(t, []string{"auto", "heat", "cool", "off"}, cfg.Modes)
	assert.Equal(t, []string{"auto", "off", "low", "medium", "high"}, cfg.FanModes)
	assert.Len(t, cfg.PresetModes, 7)
	assert.Equal(t, "eco", cfg.PresetModes[0])
	assert.Equal(t, 5.0, cfg.MinTemp)
	assert.Equal(t, 30.0, cfg.MaxTemp)
	assert.Equal(t, 0.1, cfg.TempStep)
	assert.Equal(t, "1.0.14", cfg.Device.SWVersion)

	states := b.on("verano/home/a1b2c3d4/state")
	require.Len(t, states, 2)
	got := decodeState(t, states[0])
	assert.Equal(t, 21.5, got["current_temperature"])
	assert.Equal(t, 22.0, got["temperature"])
	assert.Equal(t, "heat", got["mode"])
	assert.Equal(t, "heating", got["action"])
	assert.Equal(t, "auto", got["fan_mode"])
	assert.NotContains(t, got, "preset_mode")
	assert.NotContains(t, got, "ZoneID")

	avail := b.on("verano/home/availability")
	require.NotEmpty(t, avail)
	assert.Equal(t, "online", string(avail[0].payload))
}

func TestTransmitUnknownTemperatureOmitted(t *testing.T) {
	b := newFakeBroker()
	tx := newTransmitter(b, &mockController{}, nil)

	require.NoError(t, tx.Transmit(context.Background(), &climate.State{Mode: climate.ModeAuto}))
	got := decodeState(t, b.on("verano/home/a1b2c3d4/state")[0])
	assert.NotContains(t, got, "current_temperature")
	assert.NotContains(t, got, "temperature")
}

func TestTransmitDisconnected(t *testing.T) {
	b := newFakeBroker()
	b.connected = false
	tx := newTransmitter(b, &mockController{}, nil)
	assert.Error(t, tx.Transmit(context.Background(), sampleState()))
	assert.False(t, tx.IsConnected())
}

func TestTransmitStateFailure(t *testing.T) {
	b := newFakeBroker()
	b.failOn = "verano/home/a1b2c3d4/state"
	tx := newTransmitter(b, &mockController{}, nil)
	assert.Error(t, tx.Transmit(context.Background(), sampleState()))
}

func startRun(t *testing.T, b *fakeBroker, tx *MQTTTransmitter) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tx.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
	require.Eventually(t, func() bool { return b.subscribed(4) }, time.Second, 5*time.Millisecond)
}

func TestTemperatureCommand(t *testing.T) {
	b := newFakeBroker()
	ctrl := &mockController{}
	ctrl.On("SetConstTemp", udid, 2, 22.5).Return(nil).Once()
	tx := newTransmitter(b, ctrl, nil)
	require.NoError(t, tx.Transmit(context.Background(), sampleState()))
	startRun(t, b, tx)

	require.True(t, b.deliver("verano/home/a1b2c3d4/set/temperature", " 22.5\n"))

	require.Eventually(t, func() bool { return len(b.on("verano/home/a1b2c3d4/state")) == 2 }, time.Second, 5*time.Millisecond)
	got := decodeState(t, b.on("verano/home/a1b2c3d4/state")[1])
	assert.Equal(t, 22.5, got["temperature"])
	ctrl.AssertExpectations(t)
}

func TestTemperatureCommandRejected(t *testing.T) {
	b := newFakeBroker()
	ctrl := &mockController{}
	tx := newTransmitter(b, ctrl, nil)

	err := tx.handle(context.Background(), command{name: cmdTemperature, payload: "warm"})
	assert.ErrorIs(t, err, emodul.ErrInvalidArgument)
	err = tx.handle(context.Background(), command{name: cmdTemperature, payload: "31"})
	assert.ErrorIs(t, err, emodul.ErrInvalidArgument)
	ctrl.AssertNotCalled(t, "SetConstTemp", mock.Anything, mock.Anything, mock.Anything)
}

func TestFanAndPresetCommands(t *testing.T) {
	b := newFakeBroker()
	ctrl := &mockController{}
	ctrl.On("SetFanMode", udid, 2, "high").Return(nil).Once()
	ctrl.On("SetPresetMode", udid, 2, "comfort").Return(nil).Once()
	tx := newTransmitter(b, ctrl, nil)
	require.NoError(t, tx.Transmit(context.Background(), sampleState()))

	require.NoError(t, tx.handle(context.Background(), command{name: cmdFanMode, payload: "high"}))
	require.NoError(t, tx.handle(context.Background(), command{name: cmdPresetMode, payload: "comfort"}))

	states := b.on("verano/home/a1b2c3d4/state")
	require.Len(t, states, 3)
	last := decodeState(t, states[2])
	assert.Equal(t, "high", last["fan_mode"])
	assert.Equal(t, "comfort", last["preset_mode"])
	ctrl.AssertExpectations(t)
}

func TestInvalidFanModeFromController(t *testing.T) {
	b := newFakeBroker()
	ctrl := &mockController{}
	ctrl.On("SetFanMode", udid, 2, "turbo").Return(fmtInvalid("turbo")).Once()
	reauths := 0
	tx := newTransmitter(b, ctrl, func(context.Context) error { reauths++; return nil })

	err := tx.handle(context.Background(), command{name: cmdFanMode, payload: "turbo"})
	assert.ErrorIs(t, err, emodul.ErrInvalidArgument)
	assert.Zero(t, reauths, "validation errors are not retried")
	ctrl.AssertExpectations(t)
}

func fmtInvalid(v string) error {
	return errors.Join(emodul.ErrInvalidArgument, errors.New(v))
}

func TestModeCommandSwitchesZone(t *testing.T) {
	b := newFakeBroker()
	ctrl := &mockController{}
	ctrl.On("SetZoneState", udid, 1, false).Return(nil).Once()
	ctrl.On("SetZoneState", udid, 1, true).Return(nil).Once()
	tx := newTransmitter(b, ctrl, nil)
	require.NoError(t, tx.Transmit(context.Background(), sampleState()))

	require.NoError(t, tx.handle(context.Background(), command{name: cmdMode, payload: "off"}))
	states := b.on("verano/home/a1b2c3d4/state")
	got := decodeState(t, states[len(states)-1])
	assert.Equal(t, "off", got["mode"])
	assert.Equal(t, "off", got["action"])

	require.NoError(t, tx.handle(context.Background(), command{name: cmdMode, payload: "heat"}))
	ctrl.AssertExpectations(t)

	err := tx.handle(context.Background(), command{name: cmdMode, payload: "dry"})
	assert.ErrorIs(t, err, emodul.ErrInvalidArgument)
}

func TestModeCommandWithoutZone(t *testing.T) {
	tx := newTransmitter(newFakeBroker(), &mockController{}, nil)
	err := tx.handle(context.Background(), command{name: cmdMode, payload: "off"})
	assert.ErrorIs(t, err, emodul.ErrZoneNotFound)
}

func TestReauthenticatesOnceAndRetries(t *testing.T) {
	b := newFakeBroker()
	ctrl := &mockController{}
	unauthorized := &emodul.CommandError{Command: "set_const_temp", Err: &emodul.ProtocolError{StatusCode: 401}}
	ctrl.On("SetConstTemp", udid, 2, 21.0).Return(unauthorized).Once()
	ctrl.On("SetConstTemp", udid, 2, 21.0).Return(nil).Once()

	reauths := 0
	tx := newTransmitter(b, ctrl, func(context.Context) error { reauths++; return nil })

	require.NoError(t, tx.handle(context.Background(), command{name: cmdTemperature, payload: "21"}))
	assert.Equal(t, 1, reauths)
	ctrl.AssertNumberOfCalls(t, "SetConstTemp", 2)
}

func TestRetryFailsOnlyOnce(t *testing.T) {
	b := newFakeBroker()
	ctrl := &mockController{}
	unauthorized := &emodul.CommandError{Command: "set_fan_mode", Err: &emodul.ProtocolError{StatusCode: 401}}
	ctrl.On("SetFanMode", udid, 2, "auto").Return(unauthorized)

	reauths := 0
	tx := newTransmitter(b, ctrl, func(context.Context) error { reauths++; return nil })

	err := tx.handle(context.Background(), command{name: cmdFanMode, payload: "auto"})
	assert.ErrorIs(t, err, emodul.ErrUnauthorized)
	assert.Equal(t, 1, reauths)
	ctrl.AssertNumberOfCalls(t, "SetFanMode", 2)
}

func TestReauthFailure(t *testing.T) {
	ctrl := &mockController{}
	unauthorized := &emodul.CommandError{Command: "set_preset_mode", Err: emodul.ErrUnauthorized}
	ctrl.On("SetPresetMode", udid, 2, "eco").Return(unauthorized).Once()
	tx := newTransmitter(newFakeBroker(), ctrl, func(context.Context) error { return errors.New("rejected") })

	err := tx.handle(context.Background(), command{name: cmdPresetMode, payload: "eco"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "re-authenticate")
	ctrl.AssertNumberOfCalls(t, "SetPresetMode", 1)
}

func TestNoReauthWithoutCredentials(t *testing.T) {
	ctrl := &mockController{}
	ctrl.On("SetPresetMode", udid, 2, "eco").Return(&emodul.CommandError{Command: "set_preset_mode", Err: emodul.ErrUnauthorized}).Once()
	tx := newTransmitter(newFakeBroker(), ctrl, nil)

	err := tx.handle(context.Background(), command{name: cmdPresetMode, payload: "eco"})
	assert.ErrorIs(t, err, emodul.ErrUnauthorized)
	ctrl.AssertNumberOfCalls(t, "SetPresetMode", 1)
}
