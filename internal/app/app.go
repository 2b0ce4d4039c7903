package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jkaberg/verano-hass/internal/bus"
	"github.com/jkaberg/verano-hass/internal/climate"
	"github.com/jkaberg/verano-hass/internal/config"
	"github.com/jkaberg/verano-hass/internal/domain"
	"github.com/jkaberg/verano-hass/internal/emodul"
	"github.com/jkaberg/verano-hass/internal/metrics"
	"github.com/jkaberg/verano-hass/internal/transmission"
)

// schedulerTick is how often the scheduler looks at the latest snapshot.
var schedulerTick = config.SchedulerTick

// Source reads the cached module data; *emodul.Client implements it.
type Source interface {
	Tiles(ctx context.Context, moduleUDID string) (map[int]emodul.Tile, error)
	Zones(ctx context.Context, moduleUDID string) (map[int]emodul.ZoneRecord, error)
}

// Bridge publishes state and serves commands until its context ends.
type Bridge interface {
	transmission.Transmitter
	Run(ctx context.Context) error
}

// Deps are the collaborators of Run. Bridge and Metrics may be nil.
type Deps struct {
	Source  Source
	Bridge  Bridge
	Metrics *metrics.Metrics
	Layout  climate.Layout
}

// Run polls the module, fans snapshots out on the bus and forwards changes to
// the bridge. It blocks until parentCtx is cancelled or a component fails.
func Run(parentCtx context.Context, cfg *config.Config, moduleUDID string, deps Deps, logger *logrus.Logger) error {
	messageBus := bus.New()
	defer messageBus.Close()
	sub := messageBus.Subscribe()

	grp, ctx := errgroup.WithContext(parentCtx)

	// Poller ---------------------------------------------------------------
	grp.Go(func() error {
		poll := func() {
			state, err := snapshot(ctx, deps.Source, moduleUDID, deps.Layout)
			if err != nil {
				logger.WithError(err).Warn("poller: refresh failed")
			}
			if state == nil {
				return
			}
			if deps.Metrics != nil {
				deps.Metrics.ObserveState(moduleUDID, state)
			}
			messageBus.Publish(state)
		}

		poll()
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				poll()
			}
		}
	})

	if deps.Metrics != nil && cfg.HasMetrics() {
		grp.Go(func() error {
			return deps.Metrics.Serve(ctx, cfg.MetricsAddr, logger)
		})
	}

	if deps.Bridge != nil {
		grp.Go(func() error { return deps.Bridge.Run(ctx) })
		grp.Go(func() error {
			return schedule(ctx, cfg, sub, deps, logger)
		})
	}

	err := grp.Wait()
	if parentCtx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// snapshot projects the cached module onto a climate state. A failed refresh
// still yields a state when a previous cache exists.
func snapshot(ctx context.Context, src Source, moduleUDID string, layout climate.Layout) (*climate.State, error) {
	tiles, err := src.Tiles(ctx, moduleUDID)
	if len(tiles) == 0 {
		if err == nil {
			err = fmt.Errorf("module %s reported no tiles", moduleUDID)
		}
		return nil, err
	}
	zones, zerr := src.Zones(ctx, moduleUDID)
	if err == nil {
		err = zerr
	}

	state := climate.FromTiles(tiles, layout)
	state.ApplyZones(zones)
	state.ModuleUDID = moduleUDID
	return state, err
}

// schedule forwards the latest snapshot when it changed, or when it was not
// sent for ForceUpdateInterval.
func schedule(ctx context.Context, cfg *config.Config, sub <-chan *climate.State, deps Deps, logger *logrus.Logger) error {
	var (
		latest   *climate.State
		lastSnap *climate.State
		lastSent time.Time
	)
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-sub:
			if !ok {
				return nil
			}
			latest = snap
		case <-ticker.C:
			if latest == nil {
				continue
			}
			now := time.Now()
			forced := cfg.ForceUpdateInterval > 0 && now.Sub(lastSent) >= cfg.ForceUpdateInterval
			if !forced && !domain.Changed(lastSnap, latest) {
				continue
			}
			if err := deps.Bridge.Transmit(ctx, latest); err != nil {
				logger.WithError(err).Warn("MQTT transmit failed")
				// Retry on the next tick even without a change.
				lastSnap = nil
				continue
			}
			lastSnap = latest
			lastSent = now
			if deps.Metrics != nil {
				deps.Metrics.Transmitted(now)
			}
		}
	}
}
