package transmission

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jkaberg/verano-hass/internal/climate"
	"github.com/jkaberg/verano-hass/internal/config"
	"github.com/jkaberg/verano-hass/internal/emodul"
)

// command is one write from Home Assistant waiting for the worker.
type command struct {
	name    string
	payload string
}

// Run subscribes to the command topics and executes commands one at a time
// until ctx is cancelled. Broker callbacks only enqueue; the emodul calls
// happen here.
func (t *MQTTTransmitter) Run(ctx context.Context) error {
	for _, name := range []string{cmdTemperature, cmdFanMode, cmdPresetMode, cmdMode} {
		topic := t.commandTopic(name)
		err := t.client.Subscribe(topic, func(_ string, payload []byte) {
			t.enqueue(command{name: name, payload: strings.TrimSpace(string(payload))})
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	t.logger.WithField("module", t.module.UDID).Info("Listening for Home Assistant commands")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-t.commands:
			cctx, cancel := context.WithTimeout(ctx, config.CommandTimeout)
			err := t.handle(cctx, cmd)
			cancel()
			if err != nil {
				t.logger.WithError(err).WithFields(logrus.Fields{
					"command": cmd.name,
					"payload": cmd.payload,
				}).Warn("Home Assistant command failed")
			}
		}
	}
}

func (t *MQTTTransmitter) enqueue(cmd command) {
	select {
	case t.commands <- cmd:
	default:
		t.logger.WithField("command", cmd.name).Warn("Command queue full, dropping command")
	}
}

// handle executes one command and publishes the optimistic state.
func (t *MQTTTransmitter) handle(ctx context.Context, cmd command) error {
	udid := t.module.UDID
	var apply func(s *climate.State)

	switch cmd.name {
	case cmdTemperature:
		celsius, err := strconv.ParseFloat(cmd.payload, 64)
		if err != nil {
			return fmt.Errorf("%w: temperature %q", emodul.ErrInvalidArgument, cmd.payload)
		}
		if celsius < climate.MinTemp || celsius > climate.MaxTemp {
			return fmt.Errorf("%w: temperature %.1f outside %.0f-%.0f", emodul.ErrInvalidArgument, celsius, climate.MinTemp, climate.MaxTemp)
		}
		err = t.withReauth(ctx, func(ctx context.Context) error {
			_, err := t.controller.SetConstTemp(ctx, udid, t.moduleIndex, celsius)
			return err
		})
		if err != nil {
			return err
		}
		apply = func(s *climate.State) { s.TargetTemperature = &celsius }

	case cmdFanMode:
		err := t.withReauth(ctx, func(ctx context.Context) error {
			_, err := t.controller.SetFanMode(ctx, udid, t.moduleIndex, cmd.payload)
			return err
		})
		if err != nil {
			return err
		}
		apply = func(s *climate.State) { s.FanMode = cmd.payload }

	case cmdPresetMode:
		err := t.withReauth(ctx, func(ctx context.Context) error {
			_, err := t.controller.SetPresetMode(ctx, udid, t.moduleIndex, cmd.payload)
			return err
		})
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.preset = cmd.payload
		t.mu.Unlock()

	case cmdMode:
		if !validMode(cmd.payload) {
			return fmt.Errorf("%w: mode %q", emodul.ErrInvalidArgument, cmd.payload)
		}
		zoneID := t.zoneID()
		if zoneID == 0 {
			return fmt.Errorf("%w: no zone known for module %s", emodul.ErrZoneNotFound, udid)
		}
		on := cmd.payload != climate.ModeOff
		err := t.withReauth(ctx, func(ctx context.Context) error {
			_, err := t.controller.SetZoneState(ctx, udid, zoneID, on)
			return err
		})
		if err != nil {
			return err
		}
		apply = func(s *climate.State) {
			s.Mode = cmd.payload
			if !on {
				s.Action = climate.ActionOff
			}
		}

	default:
		return fmt.Errorf("%w: unknown command %q", emodul.ErrInvalidArgument, cmd.name)
	}

	t.logger.WithFields(logrus.Fields{
		"command": cmd.name,
		"value":   cmd.payload,
	}).Info("Applied Home Assistant command")
	return t.publishOptimistic(apply)
}

// withReauth runs fn and, when it failed with an authorization error, logs
// in again and retries exactly once.
func (t *MQTTTransmitter) withReauth(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || t.reauth == nil || !errors.Is(err, emodul.ErrUnauthorized) {
		return err
	}
	t.logger.WithError(err).Warn("emodul command rejected, re-authenticating")
	if rerr := t.reauth(ctx); rerr != nil {
		return fmt.Errorf("re-authenticate: %w (after %v)", rerr, err)
	}
	return fn(ctx)
}

// publishOptimistic republishes the last state with a command applied so
// Home Assistant does not flip back until the next poll.
func (t *MQTTTransmitter) publishOptimistic(apply func(*climate.State)) error {
	t.mu.Lock()
	last := t.last
	t.mu.Unlock()
	if last == nil {
		return nil
	}
	next := *last
	if apply != nil {
		apply(&next)
	}
	t.mu.Lock()
	t.last = &next
	t.mu.Unlock()
	return t.publishState(&next)
}

func (t *MQTTTransmitter) zoneID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return 0
	}
	return t.last.ZoneID
}

func validMode(mode string) bool {
	for _, m := range climate.Modes {
		if m == mode {
			return true
		}
	}
	return false
}
