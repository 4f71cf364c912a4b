package gcode

import (
	"fmt"
	"time"

	"github.com/mastercactapus/lasergrbl/coord"
)

// Motion is the kind of movement of a Segment.
type Motion int

const (
	Rapid Motion = iota
	Linear
	ArcCW
	ArcCCW
)

var motionNames = [...]string{
	Rapid:  "rapid",
	Linear: "linear",
	ArcCW:  "arc_cw",
	ArcCCW: "arc_ccw",
}

func (m Motion) String() string {
	if m < 0 || int(m) >= len(motionNames) {
		return fmt.Sprintf("Motion(%d)", int(m))
	}
	return motionNames[m]
}

func (m Motion) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Segment is a run of motion with the same Motion and laser state.
type Segment struct {
	Points  []coord.Point `json:"points"`
	Motion  Motion        `json:"motion"`
	LaserOn bool          `json:"laser_on"`

	// StartLine and EndLine are logical command indexes.
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

func (s Segment) last() coord.Point { return s.Points[len(s.Points)-1] }

// degenerate segments do not move anywhere.
func (s Segment) degenerate() bool {
	if len(s.Points) < 2 {
		return true
	}
	for _, p := range s.Points[1:] {
		if !p.EqualXY(s.Points[0]) {
			return false
		}
	}
	return true
}

// Job is the result of interpreting a whole program.
type Job struct {
	Segments []Segment    `json:"segments"`
	Bounds   coord.Bounds `json:"bounds"`

	// Duration is the sum of distance over feed rate, in minutes.
	Duration float64 `json:"duration"`

	// Commands is the number of commands read.
	Commands int `json:"commands"`
}

// EstimatedTime returns Duration as a time.Duration.
func (j *Job) EstimatedTime() time.Duration {
	return time.Duration(j.Duration * float64(time.Minute))
}
