package climate

import (
	"sort"
	"strings"
	"time"

	"github.com/jkaberg/verano-hass/internal/emodul"
)

// Home Assistant climate vocabulary.
const (
	ModeAuto = "auto"
	ModeHeat = "heat"
	ModeCool = "cool"
	ModeOff  = "off"

	ActionIdle    = "idle"
	ActionHeating = "heating"
	ActionOff     = "off"

	FanAuto = "auto"
)

// Modes lists the HVAC modes offered to Home Assistant.
var Modes = []string{ModeAuto, ModeHeat, ModeCool, ModeOff}

// Temperature bounds accepted by the controller.
const (
	MinTemp  = 5.0
	MaxTemp  = 30.0
	TempStep = 0.1
)

// State is the thermostat as Home Assistant sees it. Nil pointers and
// empty strings mean the controller did not report the value.
type State struct {
	CurrentTemperature *float64 `json:"current_temperature,omitempty"`
	TargetTemperature  *float64 `json:"temperature,omitempty"`
	Mode               string   `json:"mode"`
	Action             string   `json:"action,omitempty"`
	FanMode            string   `json:"fan_mode,omitempty"`

	// ZoneID is the zone switched by mode on/off, 0 when there is none.
	ZoneID     int       `json:"-"`
	ModuleUDID string    `json:"-"`
	Timestamp  time.Time `json:"-"`
}

// Layout names the tiles and labels a state is read from. Controllers with
// a different menu can override it.
type Layout struct {
	ModeTile       int
	HeatingLabel   string
	CoolingLabel   string
	TempTile       int
	CurrentLabel   string
	TargetLabel    string
	FanModeTile    int
	FanModeLabel   string
	FanAutoValue   string
	FanOutputTile  int
	FanOutputLabel string
}

// DefaultLayout matches the Verano VER-24 menu.
func DefaultLayout() Layout {
	return Layout{
		ModeTile:       53,
		HeatingLabel:   "Heating",
		CoolingLabel:   "Cooling",
		TempTile:       58,
		CurrentLabel:   "Current temperature",
		TargetLabel:    "Set temp.",
		FanModeTile:    63,
		FanModeLabel:   "Mode",
		FanAutoValue:   "Automatic mode",
		FanOutputTile:  62,
		FanOutputLabel: "Fan 0-10 V (F)",
	}
}

// FromTiles projects decoded tiles onto a State.
func FromTiles(tiles map[int]emodul.Tile, layout Layout) *State {
	s := &State{Mode: ModeAuto, Timestamp: time.Now()}

	if t, ok := tiles[layout.ModeTile]; ok {
		for _, p := range t.Pairs {
			if pairMentions(p, layout.HeatingLabel) {
				s.Mode = ModeHeat
				break
			}
			if pairMentions(p, layout.CoolingLabel) {
				s.Mode = ModeCool
				break
			}
		}
	}

	if t, ok := tiles[layout.TempTile]; ok {
		for _, p := range t.Pairs {
			v, isNum := p.Value.(float64)
			if !isNum {
				continue
			}
			switch p.Label {
			case layout.CurrentLabel:
				s.CurrentTemperature = &v
			case layout.TargetLabel:
				s.TargetTemperature = &v
			}
		}
	}

	if t, ok := tiles[layout.FanModeTile]; ok {
		for _, p := range t.Pairs {
			if p.Label != layout.FanModeLabel {
				continue
			}
			if v, isText := p.Value.(string); isText && strings.Contains(v, layout.FanAutoValue) {
				s.FanMode = FanAuto
			}
		}
	}

	if t, ok := tiles[layout.FanOutputTile]; ok {
		for _, p := range t.Pairs {
			if p.Label != layout.FanOutputLabel {
				continue
			}
			if v, isNum := p.Value.(float64); isNum && v == 0 {
				s.Action = ActionIdle
			} else {
				s.Action = ActionHeating
			}
		}
	}

	return s
}

// ApplyZones fills what the tiles left unknown from the first registered
// zone and switches the state off when that zone is off.
func (s *State) ApplyZones(zones map[int]emodul.ZoneRecord) {
	if len(zones) == 0 {
		return
	}
	ids := make([]int, 0, len(zones))
	for id := range zones {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	z := zones[ids[0]]
	s.ZoneID = ids[0]

	if s.CurrentTemperature == nil {
		if v, ok := z.CurrentCelsius(); ok {
			s.CurrentTemperature = &v
		}
	}
	if s.TargetTemperature == nil {
		if v, ok := z.TargetCelsius(); ok {
			s.TargetTemperature = &v
		}
	}
	if z.Zone.ZoneState == "zoneOff" {
		s.Mode = ModeOff
		s.Action = ActionOff
	}
}

func pairMentions(p emodul.Pair, word string) bool {
	if word == "" {
		return false
	}
	if strings.Contains(p.Label, word) {
		return true
	}
	v, ok := p.Value.(string)
	return ok && strings.Contains(v, word)
}
