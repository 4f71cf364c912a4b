package gcode

import (
	"context"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/mastercactapus/lasergrbl/coord"
)

// inch is the number of millimeters per inch.
const inch = 25.4

// Options configure an Interpreter.
type Options struct {
	// DefaultFeed is used until the program sets one with F.
	DefaultFeed float64
	// ArcSteps is the number of points each arc is split into.
	ArcSteps int
	// ArcTolerance is the minimum distance between arc points in absolute
	// mode.
	ArcTolerance float64
}

func DefaultOptions() Options {
	return Options{
		DefaultFeed:  1000,
		ArcSteps:     25,
		ArcTolerance: 0.001,
	}
}

// Interpreter turns commands into path segments. It is not safe for
// concurrent use; run one per program.
type Interpreter struct {
	opt Options
	log *zap.Logger

	unit     float64
	relative bool
	feed     float64

	current  Segment
	segments []Segment
	bounds   coord.Bounds
	duration float64
	commands int
}

// NewInterpreter constructs a new Interpreter with default state.
func NewInterpreter(opt Options, log *zap.Logger) *Interpreter {
	def := DefaultOptions()
	if opt.DefaultFeed <= 0 {
		opt.DefaultFeed = def.DefaultFeed
	}
	if opt.ArcSteps <= 0 {
		opt.ArcSteps = def.ArcSteps
	}
	if opt.ArcTolerance <= 0 {
		opt.ArcTolerance = def.ArcTolerance
	}
	if log == nil {
		log = zap.NewNop()
	}
	in := &Interpreter{opt: opt, log: log}
	in.Reset()
	return in
}

// Reset drops all accumulated state. The tool starts at the origin, in
// millimeters, absolute mode, rapid motion with the laser off.
func (in *Interpreter) Reset() {
	in.unit = 1
	in.relative = false
	in.feed = in.opt.DefaultFeed
	in.current = Segment{Points: []coord.Point{{}}, Motion: Rapid}
	in.segments = nil
	in.bounds = coord.Bounds{}
	in.duration = 0
	in.commands = 0
}

func (in *Interpreter) Inches() bool         { return in.unit != 1 }
func (in *Interpreter) RelativeMotion() bool { return in.relative }

// Run interprets the whole program in r. On any error no job is returned.
func (in *Interpreter) Run(ctx context.Context, r io.Reader) (*Job, error) {
	return in.RunCommands(ctx, NewParser(r))
}

// RunCommands interprets every command from r.
func (in *Interpreter) RunCommands(ctx context.Context, r Reader) (*Job, error) {
	in.Reset()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cmd, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		in.Exec(cmd)
	}
	return in.Finish(), nil
}

// Exec applies a single command.
func (in *Interpreter) Exec(cmd Command) {
	in.commands++
	b := cmd.Block

	motion := in.current.Motion
	if ok, g := b.Arg('G'); ok {
		w := Word{W: 'G', Arg: g}
		switch w.ModalGroup() {
		case ModalGroupUnits:
			if g == 20 {
				in.unit = 1 / inch
			} else {
				in.unit = 1
			}
			return
		case ModalGroupDistanceMode:
			in.relative = g == 91
			return
		case ModalGroupMotion:
			switch g {
			case 0:
				motion = Rapid
			case 1:
				motion = Linear
			case 2:
				motion = ArcCW
			case 3:
				motion = ArcCCW
			default:
				in.log.Debug("unsupported motion, skipped", zap.String("command", cmd.Text), zap.Int("line", cmd.Line))
				return
			}
		default:
			in.log.Debug("no recognized movement type, skipped", zap.String("command", cmd.Text), zap.Int("line", cmd.Line))
			return
		}
	}

	laser := in.current.LaserOn
	for _, w := range b {
		if w.ModalGroup() != ModalGroupSpindle {
			continue
		}
		laser = w.Arg != 5
	}

	if motion != in.current.Motion || laser != in.current.LaserOn {
		last := in.current.last()
		in.closeSegment()
		in.current = Segment{
			Points:    []coord.Point{last},
			Motion:    motion,
			LaserOn:   laser,
			StartLine: cmd.Index,
		}
	}
	if in.current.StartLine == 0 {
		in.current.StartLine = cmd.Index
	}
	in.current.EndLine = cmd.Index

	if ok, f := b.Arg('F'); ok {
		in.feed = f * in.unit
	}

	switch motion {
	case Rapid, Linear:
		in.line(b)
	case ArcCW:
		in.arc(b, true)
	case ArcCCW:
		in.arc(b, false)
	}
}

// Finish closes the open segment and returns the job.
func (in *Interpreter) Finish() *Job {
	in.closeSegment()
	in.current = Segment{Points: []coord.Point{in.current.last()}, Motion: in.current.Motion, LaserOn: in.current.LaserOn}
	return &Job{
		Segments: append([]Segment(nil), in.segments...),
		Bounds:   in.bounds,
		Duration: in.duration,
		Commands: in.commands,
	}
}

func (in *Interpreter) closeSegment() {
	if in.current.degenerate() {
		return
	}
	in.segments = append(in.segments, in.current)
}

func (in *Interpreter) accrue(dist float64) {
	if in.feed <= 0 {
		return
	}
	in.duration += dist / in.feed
}

// target returns the X/Y destination of b starting from last.
func (in *Interpreter) target(b Block, last coord.Point) coord.Point {
	t := last
	if ok, x := b.Arg('X'); ok {
		t.X = x * in.unit
		if in.relative {
			t.X += last.X
		}
	}
	if ok, y := b.Arg('Y'); ok {
		t.Y = y * in.unit
		if in.relative {
			t.Y += last.Y
		}
	}
	return t
}

func (in *Interpreter) line(b Block) {
	last := in.current.last()
	t := in.target(b, last)

	in.accrue(last.DistanceXY(t.X, t.Y))
	in.bounds.Extend(t)

	if !t.EqualXY(last) {
		in.current.Points = append(in.current.Points, t)
	}
}

func (in *Interpreter) arc(b Block, clockwise bool) {
	last := in.current.last()
	t := in.target(b, last)

	_, i := b.Arg('I')
	_, j := b.Arg('J')
	i *= in.unit
	j *= in.unit

	center := last.Add(coord.Point{X: i, Y: j})
	radius := math.Hypot(i, j)
	a1 := center.AngleXY(last)
	a2 := center.AngleXY(t)

	dir := 1.0
	if clockwise {
		if a1 < a2 {
			a1 += 2 * math.Pi
		}
		dir = -1
	} else if a2 < a1 {
		a2 += 2 * math.Pi
	}

	sweep := math.Abs(a1 - a2)
	if sweep == 0 {
		sweep = 2 * math.Pi
	}
	in.accrue(sweep)

	steps := in.opt.ArcSteps
	for k := 1; k <= steps; k++ {
		p := center.Polar(radius, a1+dir*sweep*float64(k)/float64(steps))
		if k == steps && p.NearXY(t, in.opt.ArcTolerance) {
			p = t
		}
		in.bounds.Extend(p)

		if in.relative || !p.NearXY(in.current.last(), in.opt.ArcTolerance) {
			in.current.Points = append(in.current.Points, p)
		}
	}
}
