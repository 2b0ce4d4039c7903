package domain

import (
	"math"
	"reflect"
	"time"

	"github.com/jkaberg/verano-hass/internal/climate"
)

// tempJitter is the smallest temperature change worth a transmit.
const tempJitter = 0.05

// Changed returns true if *cur* differs from *prev* beyond tolerated jitter.
// The Timestamp field is ignored, and temperatures that moved by less than
// tempJitter count as equal.
func Changed(prev, cur *climate.State) bool {
	if prev == nil && cur == nil {
		return false
	}
	if prev == nil || cur == nil {
		return true
	}

	p, c := *prev, *cur // copy
	p.Timestamp = time.Time{}
	c.Timestamp = time.Time{}

	if closeEnough(p.CurrentTemperature, c.CurrentTemperature) {
		p.CurrentTemperature, c.CurrentTemperature = nil, nil
	}
	if closeEnough(p.TargetTemperature, c.TargetTemperature) {
		p.TargetTemperature, c.TargetTemperature = nil, nil
	}

	return !reflect.DeepEqual(p, c)
}

func closeEnough(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) < tempJitter
}
