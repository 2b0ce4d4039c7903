package emodul

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Zones returns the zones of a module, refreshing the cache first when it
// is stale. On a failed refresh the previous zones are returned together
// with a *RefreshError.
func (c *Client) Zones(ctx context.Context, moduleUDID string) (map[int]ZoneRecord, error) {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	err := c.refreshLocked(ctx, moduleUDID)
	return copyZones(c.zones), err
}

// Tiles returns the decoded tiles of a module, refreshing the cache first
// when it is stale. On a failed refresh the previous tiles are returned
// together with a *RefreshError.
func (c *Client) Tiles(ctx context.Context, moduleUDID string) (map[int]Tile, error) {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	err := c.refreshLocked(ctx, moduleUDID)
	return copyTiles(c.tiles), err
}

// Zone returns a single zone from the (possibly refreshed) cache. A zone
// that survives in a stale cache is still returned when the refresh failed.
func (c *Client) Zone(ctx context.Context, moduleUDID string, zoneID int) (ZoneRecord, error) {
	zones, err := c.Zones(ctx, moduleUDID)
	z, ok := zones[zoneID]
	switch {
	case ok:
		return z, nil
	case err != nil:
		return ZoneRecord{}, err
	default:
		return ZoneRecord{}, fmt.Errorf("%w: %d", ErrZoneNotFound, zoneID)
	}
}

// stale must be called with updateMu held.
func (c *Client) stale(moduleUDID string) bool {
	if c.lastUpdate.IsZero() || c.cachedModule != moduleUDID {
		return true
	}
	return c.now().After(c.lastUpdate.Add(c.updateInterval))
}

// refreshLocked must be called with updateMu held. Zones and tiles share one
// clock, so both are decoded from the same payload and installed together.
func (c *Client) refreshLocked(ctx context.Context, moduleUDID string) error {
	now := c.now()
	if !c.stale(moduleUDID) {
		return nil
	}
	log := c.logger.WithFields(logrus.Fields{
		"module":      moduleUDID,
		"last_update": c.lastUpdate,
		"interval":    c.updateInterval,
	})
	log.Debug("Updating emodul module cache")

	data, err := c.ModuleData(ctx, moduleUDID)
	if err != nil {
		return c.refreshFailed(log, moduleUDID, err)
	}

	lang, err := c.RefreshLanguageStrings(ctx)
	if err != nil {
		log.WithError(err).Warn("Language strings unavailable, decoding with previous table")
	}

	tiles, err := DecodeTiles(data.Tiles, lang)
	if err != nil {
		return c.refreshFailed(log, moduleUDID, err)
	}
	zones := decodeZones(data.Zones.Elements)

	c.zones = zones
	c.tiles = tiles
	c.cachedModule = moduleUDID
	c.lastUpdate = now

	log.WithFields(logrus.Fields{
		"zones": len(zones),
		"tiles": len(tiles),
	}).Debug("emodul module cache updated")
	c.observer.RefreshCompleted(moduleUDID, nil)
	return nil
}

func (c *Client) refreshFailed(log *logrus.Entry, moduleUDID string, err error) error {
	log.WithError(err).Warn("emodul cache refresh failed, keeping previous data")
	c.observer.RefreshCompleted(moduleUDID, err)
	return &RefreshError{Module: moduleUDID, Err: err}
}

func copyZones(src map[int]ZoneRecord) map[int]ZoneRecord {
	dst := make(map[int]ZoneRecord, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyTiles(src map[int]Tile) map[int]Tile {
	dst := make(map[int]Tile, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
