package gcode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCommands(t *testing.T) {
	check := func(in string, exp ...string) {
		t.Helper()
		assert.Equal(t, exp, splitCommands(in), in)
	}

	check("G0 X1", "G0 X1")
	check("G0 X1 G1 X2", "G0 X1", "G1 X2")
	check("M3 S1000 G1 Y2", "M3 S1000", "G1 Y2")
	check("G90G21", "G90", "G21")
	check("M5", "M5")
}

func TestParse(t *testing.T) {
	cmds, err := Parse("G0 X1 G1 X2 ; move\n(header)\n\nm3 s1000 g1 y2\n")
	require.NoError(t, err)
	require.Len(t, cmds, 4)

	assert.Equal(t, Command{Line: 1, Index: 1, Text: "G0 X1", Block: Block{{'G', 0}, {'X', 1}}}, cmds[0])
	assert.Equal(t, Command{Line: 1, Index: 2, Text: "G1 X2", Block: Block{{'G', 1}, {'X', 2}}}, cmds[1])
	assert.Equal(t, Command{Line: 4, Index: 3, Text: "M3 S1000", Block: Block{{'M', 3}, {'S', 1000}}}, cmds[2])
	assert.Equal(t, Command{Line: 4, Index: 4, Text: "G1 Y2", Block: Block{{'G', 1}, {'Y', 2}}}, cmds[3])
}

func TestParse_Words(t *testing.T) {
	cmds := MustParse("G1 X 1.5 Y-.25 Z+3 F1000.")
	require.Len(t, cmds, 1)

	b := cmds[0].Block
	assert.Equal(t, Block{{'G', 1}, {'X', 1.5}, {'Y', -0.25}, {'Z', 3}, {'F', 1000}}, b)
	assert.Equal(t, "G1X1.5Y-0.25Z3F1000", b.String())

	ok, v := b.Arg('Y')
	assert.True(t, ok)
	assert.Equal(t, -0.25, v)
	ok, _ = b.Arg('I')
	assert.False(t, ok)
	assert.True(t, b.Has('G', 1))
	assert.False(t, b.Has('G', 0))
}

func TestParse_NoTrailingNewline(t *testing.T) {
	cmds, err := Parse("G0 X1\nG0 X2")
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, 2, cmds[1].Line)
}

func TestParse_Empty(t *testing.T) {
	cmds, err := Parse("")
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

func TestParse_Binary(t *testing.T) {
	_, err := Parse("\x00\x01\x02\x03\x04\x05")
	require.Error(t, err)

	var derr *DecodeError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, 0, derr.Line)
	assert.ErrorIs(t, err, ErrBinary)
}

func TestWord_ModalGroup(t *testing.T) {
	assert.Equal(t, ModalGroupMotion, Word{'G', 2}.ModalGroup())
	assert.Equal(t, ModalGroupUnits, Word{'G', 20}.ModalGroup())
	assert.Equal(t, ModalGroupDistanceMode, Word{'G', 91}.ModalGroup())
	assert.Equal(t, ModalGroupSpindle, Word{'M', 5}.ModalGroup())
	assert.Equal(t, ModalGroupNone, Word{'X', 5}.ModalGroup())
	assert.Equal(t, ModalGroupNone, Word{'G', 999}.ModalGroup())
}
