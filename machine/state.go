package machine

import (
	"maps"

	"github.com/mastercactapus/lasergrbl/coord"
)

// State is a snapshot of everything known about the controller. It is passed
// by value; the maps are never shared with the Model.
type State struct {
	Status string `json:"status"`

	MPos coord.Point `json:"mpos"`
	WPos coord.Point `json:"wpos"`
	WCO  coord.Point `json:"wco"`

	HasMPos bool `json:"has_mpos"`
	HasWPos bool `json:"has_wpos"`
	HasWCO  bool `json:"has_wco"`

	// Fields holds every other numeric report field, e.g. FS, Bf, Ov, Ln.
	Fields map[string][]float64 `json:"fields,omitempty"`

	// Pins (Pn) and Accessories (A) are kept verbatim.
	Pins        string `json:"pins,omitempty"`
	Accessories string `json:"accessories,omitempty"`

	Temperature *float64        `json:"temperature,omitempty"`
	Digital     map[string]bool `json:"digital,omitempty"`

	// Settings holds the last `$$` dump, keyed by name (e.g. "$110").
	Settings map[string]float64 `json:"settings,omitempty"`
}

func (s State) clone() State {
	s.Fields = maps.Clone(s.Fields)
	s.Digital = maps.Clone(s.Digital)
	s.Settings = maps.Clone(s.Settings)
	if s.Temperature != nil {
		t := *s.Temperature
		s.Temperature = &t
	}
	for k, v := range s.Fields {
		s.Fields[k] = append([]float64(nil), v...)
	}
	return s
}

// AtWorkZero reports whether the work position is within tol of the work
// origin on X and Y. It returns true if the position is not known yet.
func (s State) AtWorkZero(tol float64) bool {
	if !s.HasWPos {
		return true
	}
	return s.WPos.NearXY(coord.Point{}, tol)
}

// FeedSpeed returns the current feed rate and spindle (laser power) value
// from the FS or F report field.
func (s State) FeedSpeed() (feed, speed float64, ok bool) {
	if fs := s.Fields["FS"]; len(fs) >= 2 {
		return fs[0], fs[1], true
	}
	if f := s.Fields["F"]; len(f) >= 1 {
		return f[0], 0, true
	}
	return 0, 0, false
}
