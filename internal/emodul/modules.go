package emodul

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Module describes one controller registered to the account.
type Module struct {
	ID      int    `json:"id"`
	UDID    string `json:"udid"`
	Version string `json:"version"`
	Name    string `json:"name"`
}

// ModuleData is the raw payload of a single module.
type ModuleData struct {
	Zones struct {
		Elements []ZoneRecord `json:"elements"`
	} `json:"zones"`
	Tiles []RawTile `json:"tiles"`
}

// ZoneRecord is one zone element as sent by the API. Temperatures are in
// tenths of a degree Celsius.
type ZoneRecord struct {
	Zone struct {
		ID                 int    `json:"id"`
		ParentID           int    `json:"parentId"`
		Index              int    `json:"index"`
		CurrentTemperature *int   `json:"currentTemperature"`
		SetTemperature     *int   `json:"setTemperature"`
		ZoneState          string `json:"zoneState"`
		SignalStrength     *int   `json:"signalStrength"`
		BatteryLevel       *int   `json:"batteryLevel"`
		Humidity           *int   `json:"humidity"`
		Visibility         bool   `json:"visibility"`
	} `json:"zone"`
	Description struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"description"`
	Mode struct {
		ID             int    `json:"id"`
		Mode           string `json:"mode"`
		ConstTempTime  int    `json:"constTempTime"`
		SetTemperature int    `json:"setTemperature"`
		ScheduleIndex  int    `json:"scheduleIndex"`
	} `json:"mode"`
}

// ZoneStateUnregistered marks zones that are dropped from the cache.
const ZoneStateUnregistered = "zoneUnregistered"

// CurrentCelsius converts the current zone temperature to degrees.
func (z ZoneRecord) CurrentCelsius() (float64, bool) {
	if z.Zone.CurrentTemperature == nil {
		return 0, false
	}
	return float64(*z.Zone.CurrentTemperature) / 10, true
}

// TargetCelsius converts the zone set-point to degrees.
func (z ZoneRecord) TargetCelsius() (float64, bool) {
	if z.Zone.SetTemperature == nil {
		return 0, false
	}
	return float64(*z.Zone.SetTemperature) / 10, true
}

// ListModules returns the modules of the authenticated user.
func (c *Client) ListModules(ctx context.Context) ([]Module, error) {
	st := c.session.snapshot()
	if !st.Authenticated {
		c.logger.Error("Listing modules failed, emodul session is not authenticated")
		return nil, ErrUnauthorized
	}
	c.logger.WithField("user_id", st.UserID).Debug("Listing emodul modules")

	var modules []Module
	if err := c.get(ctx, "api/v1/users/"+st.UserID+"/modules", buildHeaders(st.Token, ""), &modules); err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return modules, nil
}

// ModuleData fetches the raw zones and tiles of a module, bypassing the cache.
func (c *Client) ModuleData(ctx context.Context, moduleUDID string) (*ModuleData, error) {
	st := c.session.snapshot()
	if !st.Authenticated {
		c.logger.WithField("module", moduleUDID).Error("Pulling module data failed, emodul session is not authenticated")
		return nil, ErrUnauthorized
	}
	c.logger.WithFields(logrus.Fields{
		"user_id": st.UserID,
		"module":  moduleUDID,
	}).Debug("Getting emodul module data")

	var data ModuleData
	if err := c.get(ctx, modulePath(st.UserID, moduleUDID), buildHeaders(st.Token, ""), &data); err != nil {
		return nil, fmt.Errorf("module %s data: %w", moduleUDID, err)
	}
	return &data, nil
}

func modulePath(userID, moduleUDID string) string {
	return "api/v1/users/" + userID + "/modules/" + moduleUDID
}
