package emodul

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

const pathSendControlData = "frontend/send_control_data"

// Control ids ("ido") understood by send_control_data.
const (
	idoTargetTemperature = 139
	idoPresetMode        = 140
	idoFanMode           = 141
	idoFanSpeed          = 142
)

// Fan mode codes carried by the idoFanMode command.
const (
	fanModeOff    = 0
	fanModeManual = 1
	fanModeAuto   = 3
)

// Command is one entry of a send_control_data payload.
type Command struct {
	Ido         int `json:"ido"`
	Params      int `json:"params"`
	ModuleIndex int `json:"module_index"`
}

// Presets maps preset mode names to their vendor codes.
var Presets = map[string]int{
	"eco":             0,
	"comfort":         1,
	"protection":      2,
	"schedule1":       3,
	"schedule2":       4,
	"schedule3":       5,
	"schedule_weekly": 6,
}

// PresetNames returns the preset mode names ordered by code.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return Presets[names[i]] < Presets[names[j]] })
	return names
}

// FanModes lists the supported fan modes.
var FanModes = []string{"auto", "off", "low", "medium", "high"}

var fanSpeeds = map[string]int{"low": 1, "medium": 2, "high": 3}

// TemperatureCommands builds the payload that sets a constant target
// temperature, in tenths of a degree.
func TemperatureCommands(moduleIndex int, celsius float64) []Command {
	return []Command{{
		Ido:         idoTargetTemperature,
		Params:      int(math.Round(celsius * 10)),
		ModuleIndex: moduleIndex,
	}}
}

// PresetCommands builds the payload that selects a preset mode.
func PresetCommands(moduleIndex int, preset string) ([]Command, error) {
	code, ok := Presets[preset]
	if !ok {
		return nil, fmt.Errorf("%w: preset mode %q", ErrInvalidArgument, preset)
	}
	return []Command{{Ido: idoPresetMode, Params: code, ModuleIndex: moduleIndex}}, nil
}

// FanCommands builds the payload for a fan mode. Fixed speeds send the speed
// first and then switch the fan to manual mode.
func FanCommands(moduleIndex int, fan string) ([]Command, error) {
	switch fan {
	case "auto":
		return []Command{{Ido: idoFanMode, Params: fanModeAuto, ModuleIndex: moduleIndex}}, nil
	case "off":
		return []Command{{Ido: idoFanMode, Params: fanModeOff, ModuleIndex: moduleIndex}}, nil
	case "low", "medium", "high":
		return []Command{
			{Ido: idoFanSpeed, Params: fanSpeeds[fan], ModuleIndex: moduleIndex},
			{Ido: idoFanMode, Params: fanModeManual, ModuleIndex: moduleIndex},
		}, nil
	default:
		return nil, fmt.Errorf("%w: fan mode %q", ErrInvalidArgument, fan)
	}
}

// SetConstTemp sets a constant target temperature on a module.
func (c *Client) SetConstTemp(ctx context.Context, moduleUDID string, moduleIndex int, celsius float64) (json.RawMessage, error) {
	return c.sendControl(ctx, "set_const_temp", moduleUDID, TemperatureCommands(moduleIndex, celsius))
}

// SetPresetMode switches a module to one of the Presets.
func (c *Client) SetPresetMode(ctx context.Context, moduleUDID string, moduleIndex int, preset string) (json.RawMessage, error) {
	cmds, err := PresetCommands(moduleIndex, preset)
	if err != nil {
		return nil, err
	}
	return c.sendControl(ctx, "set_preset_mode", moduleUDID, cmds)
}

// SetFanMode switches the fan of a module to one of FanModes.
func (c *Client) SetFanMode(ctx context.Context, moduleUDID string, moduleIndex int, fan string) (json.RawMessage, error) {
	cmds, err := FanCommands(moduleIndex, fan)
	if err != nil {
		return nil, err
	}
	return c.sendControl(ctx, "set_fan_mode", moduleUDID, cmds)
}

type zoneStateRequest struct {
	Zone struct {
		ID        int    `json:"id"`
		ZoneState string `json:"zoneState"`
	} `json:"zone"`
}

// SetZoneState turns a zone on or off.
func (c *Client) SetZoneState(ctx context.Context, moduleUDID string, zoneID int, on bool) (json.RawMessage, error) {
	const command = "set_zone"
	st := c.session.snapshot()
	if !st.Authenticated {
		return nil, c.commandFailed(command, ErrUnauthorized)
	}
	var body zoneStateRequest
	body.Zone.ID = zoneID
	body.Zone.ZoneState = "zoneOff"
	if on {
		body.Zone.ZoneState = "zoneOn"
	}
	c.logger.WithFields(logrus.Fields{
		"module": moduleUDID,
		"zone":   zoneID,
		"state":  body.Zone.ZoneState,
	}).Debug("Setting emodul zone state")

	var out json.RawMessage
	path := modulePath(st.UserID, moduleUDID) + "/zones"
	if err := c.post(ctx, path, buildHeaders(st.Token, controlReferer(moduleUDID)), body, &out); err != nil {
		return nil, c.commandFailed(command, err)
	}
	c.observer.CommandCompleted(command, nil)
	return out, nil
}

// sendControl posts a control payload with headers built from the current
// token. Every failure is reported as a *CommandError.
func (c *Client) sendControl(ctx context.Context, command, moduleUDID string, cmds []Command) (json.RawMessage, error) {
	st := c.session.snapshot()
	if !st.Authenticated {
		return nil, c.commandFailed(command, ErrUnauthorized)
	}
	c.logger.WithFields(logrus.Fields{
		"command":  command,
		"module":   moduleUDID,
		"payloads": len(cmds),
	}).Debug("Sending emodul control data")

	var out json.RawMessage
	if err := c.post(ctx, pathSendControlData, buildHeaders(st.Token, controlReferer(moduleUDID)), cmds, &out); err != nil {
		return nil, c.commandFailed(command, err)
	}
	c.logger.WithField("command", command).Debug("emodul control data accepted")
	c.observer.CommandCompleted(command, nil)
	return out, nil
}

func (c *Client) commandFailed(command string, err error) error {
	c.logger.WithError(err).WithField("command", command).Error("emodul command failed")
	c.observer.CommandCompleted(command, err)
	return &CommandError{Command: command, Err: err}
}
