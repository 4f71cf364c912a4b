package gcode

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/lasergrbl/coord"
)

func run(t *testing.T, program string) *Job {
	t.Helper()
	job, err := NewInterpreter(DefaultOptions(), nil).Run(context.Background(), strings.NewReader(program))
	require.NoError(t, err)
	return job
}

func TestInterpreter_Linear(t *testing.T) {
	job := run(t, "G90 G21 G1 X10 Y0 F1000\nG1 X10 Y10\n")

	require.Len(t, job.Segments, 1)
	seg := job.Segments[0]
	assert.Equal(t, Linear, seg.Motion)
	assert.False(t, seg.LaserOn)
	assert.Equal(t, []coord.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}, seg.Points)

	assert.Equal(t, coord.Point{X: 0, Y: 0}, job.Bounds.Min)
	assert.Equal(t, coord.Point{X: 10, Y: 10}, job.Bounds.Max)
	assert.InDelta(t, 0.02, job.Duration, 1e-12)
	assert.Equal(t, 4, job.Commands)
}

func TestInterpreter_ArcClockwise(t *testing.T) {
	job := run(t, "G90 G21 G2 X0 Y10 I0 J5")

	require.Len(t, job.Segments, 1)
	seg := job.Segments[0]
	assert.Equal(t, ArcCW, seg.Motion)
	require.Len(t, seg.Points, 26)

	tol := DefaultOptions().ArcTolerance
	assert.True(t, seg.Points[0].NearXY(coord.Point{}, tol))
	assert.True(t, seg.Points[25].NearXY(coord.Point{Y: 10}, tol))

	center := coord.Point{Y: 5}
	prev := center.AngleXY(seg.Points[0])
	for _, p := range seg.Points[1:] {
		a := center.AngleXY(p)
		assert.Less(t, a, prev, "clockwise arc must sweep with decreasing angle")
		assert.InDelta(t, 5, center.DistanceXY(p.X, p.Y), 1e-9)
		prev = a
	}

	assert.InDelta(t, -5, job.Bounds.Min.X, 0.05)
	assert.InDelta(t, 10, job.Bounds.Max.Y, 1e-9)
	assert.InDelta(t, math.Pi/1000, job.Duration, 1e-12)
}

func TestInterpreter_ArcCounterClockwise(t *testing.T) {
	job := run(t, "G3 X0 Y10 I0 J5")

	require.Len(t, job.Segments, 1)
	seg := job.Segments[0]
	assert.Equal(t, ArcCCW, seg.Motion)

	center := coord.Point{Y: 5}
	mid := seg.Points[len(seg.Points)/2]
	assert.Greater(t, mid.X, 0.0, "counter clockwise from the bottom goes right")
	assert.InDelta(t, 5, job.Bounds.Max.X, 0.05)
	assert.InDelta(t, 5, center.DistanceXY(mid.X, mid.Y), 1e-9)
}

func TestInterpreter_FullCircle(t *testing.T) {
	job := run(t, "G2 X0 Y0 I5 J0")

	require.Len(t, job.Segments, 1)
	seg := job.Segments[0]
	assert.Len(t, seg.Points, 26)
	assert.Equal(t, coord.Point{}, seg.Points[25])
	assert.InDelta(t, 10, job.Bounds.Max.X, 0.05)
	assert.InDelta(t, 2*math.Pi/1000, job.Duration, 1e-12)
}

func TestInterpreter_RelativeArcKeepsEveryStep(t *testing.T) {
	// every step is closer than the tolerance
	job := run(t, "G91\nG2 X0 Y0.0002 I0 J0.0001")
	require.Len(t, job.Segments, 1)
	assert.Len(t, job.Segments[0].Points, 26)

	job = run(t, "G90\nG2 X0 Y0.0002 I0 J0.0001")
	assert.Empty(t, job.Segments)
}

func TestInterpreter_DegenerateDiscarded(t *testing.T) {
	job := run(t, "G1 X0 Y0")
	assert.Empty(t, job.Segments)

	job = run(t, "G0 X5\nG0 X5\n")
	require.Len(t, job.Segments, 1)
	assert.Len(t, job.Segments[0].Points, 2)
}

func TestInterpreter_LaserSplitsSegments(t *testing.T) {
	job := run(t, "G0 X5\nM3 S1000\nG1 X10\nM5\nG0 X0\n")

	require.Len(t, job.Segments, 3)

	assert.Equal(t, Rapid, job.Segments[0].Motion)
	assert.False(t, job.Segments[0].LaserOn)

	assert.Equal(t, Linear, job.Segments[1].Motion)
	assert.True(t, job.Segments[1].LaserOn)
	assert.Equal(t, []coord.Point{{X: 5}, {X: 10}}, job.Segments[1].Points)

	assert.Equal(t, Rapid, job.Segments[2].Motion)
	assert.False(t, job.Segments[2].LaserOn)
	assert.Equal(t, []coord.Point{{X: 10}, {X: 0}}, job.Segments[2].Points)

	for i := 1; i < len(job.Segments); i++ {
		prev := job.Segments[i-1]
		assert.Equal(t, prev.Points[len(prev.Points)-1], job.Segments[i].Points[0], "segments must be continuous")
	}
}

func TestInterpreter_LineNumbers(t *testing.T) {
	job := run(t, "G0 X1 G1 X2\nG1 X3\nG0 X0")

	require.Len(t, job.Segments, 3)
	assert.Equal(t, 1, job.Segments[0].StartLine)
	assert.Equal(t, 1, job.Segments[0].EndLine)
	assert.Equal(t, 2, job.Segments[1].StartLine)
	assert.Equal(t, 3, job.Segments[1].EndLine)
	assert.Equal(t, 4, job.Segments[2].StartLine)
}

func TestInterpreter_Relative(t *testing.T) {
	job := run(t, "G91\nG1 X5 Y5\nG1 X5\n")

	require.Len(t, job.Segments, 1)
	assert.Equal(t, []coord.Point{{}, {X: 5, Y: 5}, {X: 10, Y: 5}}, job.Segments[0].Points)
}

func TestInterpreter_Inches(t *testing.T) {
	job := run(t, "G20\nG1 X25.4 F254\n")

	require.Len(t, job.Segments, 1)
	assert.InDelta(t, 1, job.Segments[0].Points[1].X, 1e-12)
}

func TestInterpreter_FeedPersists(t *testing.T) {
	job := run(t, "G1 X10 F500\nG1 X20\n")
	assert.InDelta(t, 0.04, job.Duration, 1e-12)

	job = run(t, "G1 X10\n")
	assert.InDelta(t, 0.01, job.Duration, 1e-12, "default feed")
}

func TestInterpreter_IgnoresUnsupported(t *testing.T) {
	job := run(t, "G1 X5\nG4 P1\nG17\nG1 X6\n")

	require.Len(t, job.Segments, 1)
	assert.Equal(t, []coord.Point{{}, {X: 5}, {X: 6}}, job.Segments[0].Points)
}

func TestInterpreter_DecodeError(t *testing.T) {
	in := NewInterpreter(DefaultOptions(), nil)

	job, err := in.Run(context.Background(), bytes.NewReader([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x00, 'G', '1'}))
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, ErrBinary)
	assert.Nil(t, job)

	// binary data after the detection window
	program := strings.Repeat("G1 X1\n", 1000) + "\x00\x00"
	job, err = in.Run(context.Background(), strings.NewReader(program))
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 1001, de.Line)
	assert.Nil(t, job)
}

func TestInterpreter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, err := NewInterpreter(DefaultOptions(), nil).Run(ctx, strings.NewReader("G1 X1"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, job)
}

func TestInterpreter_RunCommands(t *testing.T) {
	r := &CommandsReader{Commands: MustParse("G1 X1\nG1 Y1")}
	job, err := NewInterpreter(Options{}, nil).RunCommands(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, job.Segments, 1)
	assert.Len(t, job.Segments[0].Points, 3)
}
