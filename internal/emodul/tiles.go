package emodul

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Tile kinds the decoder understands; everything else is dropped.
const (
	KindStatusWidgets = 6
	KindTextInfo      = 40
	KindVersionInfo   = 50
)

// Widget unit codes with special handling.
const (
	// UnitTenthCelsius values are fixed point tenths of a degree.
	UnitTenthCelsius = 7
	// UnitTextID values are themselves language-string ids.
	UnitTextID = 18
)

// RawTile is a tile as sent by the API.
type RawTile struct {
	ID     int     `json:"id"`
	Type   int     `json:"type"`
	Params *Params `json:"params"`
}

// Params is a JSON object whose key order is preserved.
type Params struct {
	raw    []byte
	keys   []string
	values map[string]json.RawMessage
}

// Keys returns the parameter names in document order.
func (p *Params) Keys() []string { return p.keys }

// UnmarshalJSON implements json.Unmarshaler.
func (p *Params) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("tile params: expected object, got %v", tok)
	}
	p.raw = append([]byte(nil), b...)
	p.keys = nil
	p.values = make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("tile params: expected key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("tile params %q: %w", key, err)
		}
		if _, dup := p.values[key]; !dup {
			p.keys = append(p.keys, key)
		}
		p.values[key] = raw
	}
	_, err = dec.Token()
	return err
}

// decode unmarshals the named parameter into out; absent keys leave out untouched.
func (p *Params) decode(key string, out any) error {
	raw, ok := p.values[key]
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Pair is one decoded widget: a display label and its value. Value is a
// float64, a string, or nil when a text id has no translation.
type Pair struct {
	Label string
	Value any
}

// Tile is a decoded tile. Status widget tiles fill Pairs; text and version
// tiles fill Texts with a fixed shape ([header, status] and
// [label, controller, version]).
type Tile struct {
	ID    int
	Kind  int
	Pairs []Pair
	Texts []string
}

type widget struct {
	TxtID int             `json:"txtId"`
	Value json.RawMessage `json:"value"`
	Unit  int             `json:"unit"`
}

type textInfo struct {
	HeaderID int `json:"headerId"`
	StatusID int `json:"statusId"`
}

type versionInfo struct {
	TxtID          int    `json:"txtId"`
	ControllerName string `json:"controllerName"`
	Version        string `json:"version"`
}

// DecodeTiles turns raw tiles into decoded tiles keyed by tile id. Any
// malformed tile fails the whole batch.
func DecodeTiles(raw []RawTile, lang LanguageStrings) (map[int]Tile, error) {
	out := make(map[int]Tile, len(raw))
	for _, rt := range raw {
		if rt.Params == nil {
			continue
		}
		tile := Tile{ID: rt.ID, Kind: rt.Type}
		switch rt.Type {
		case KindStatusWidgets:
			pairs, err := decodeWidgets(rt.Params, lang)
			if err != nil {
				return nil, fmt.Errorf("tile %d: %w", rt.ID, err)
			}
			tile.Pairs = pairs
		case KindTextInfo:
			var ti textInfo
			if err := rt.Params.decodeAll(&ti); err != nil {
				return nil, fmt.Errorf("tile %d: %w", rt.ID, err)
			}
			tile.Texts = []string{text(lang, ti.HeaderID), text(lang, ti.StatusID)}
		case KindVersionInfo:
			var vi versionInfo
			if err := rt.Params.decodeAll(&vi); err != nil {
				return nil, fmt.Errorf("tile %d: %w", rt.ID, err)
			}
			tile.Texts = []string{text(lang, vi.TxtID), vi.ControllerName, vi.Version}
		default:
			continue
		}
		out[rt.ID] = tile
	}
	return out, nil
}

func decodeWidgets(p *Params, lang LanguageStrings) ([]Pair, error) {
	pairs := []Pair{}
	for _, key := range p.keys {
		if !strings.Contains(key, "widget") {
			continue
		}
		var w widget
		if err := p.decode(key, &w); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if w.TxtID == 0 {
			continue
		}
		value, err := widgetValue(w, lang)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		pairs = append(pairs, Pair{Label: text(lang, w.TxtID), Value: value})
	}
	return pairs, nil
}

func widgetValue(w widget, lang LanguageStrings) (any, error) {
	if len(w.Value) == 0 || bytes.Equal(w.Value, []byte("null")) {
		return nil, nil
	}
	switch w.Unit {
	case UnitTenthCelsius:
		var n float64
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return nil, fmt.Errorf("value %s is not numeric", string(w.Value))
		}
		return n / 10, nil
	case UnitTextID:
		if s, ok := lang[textKey(w.Value)]; ok {
			return s, nil
		}
		return nil, nil
	default:
		var v any
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// textKey is the language-table key for a text id sent either as a JSON
// string or as a number literal.
func textKey(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

// decodeAll unmarshals the whole parameter object into out.
func (p *Params) decodeAll(out any) error {
	return json.Unmarshal(p.raw, out)
}

func text(lang LanguageStrings, id int) string {
	s, _ := lang.Lookup(id)
	return s
}

// decodeZones drops unregistered zones and indexes the rest by zone id.
func decodeZones(elements []ZoneRecord) map[int]ZoneRecord {
	out := make(map[int]ZoneRecord, len(elements))
	for _, z := range elements {
		if z.Zone.ZoneState == ZoneStateUnregistered {
			continue
		}
		out[z.Zone.ID] = z
	}
	return out
}
