package gcode

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandsReader(t *testing.T) {
	cmds := MustParse("G1 X1 G0 Y2\nM5")

	r := &CommandsReader{Commands: cmds}

	c, err := r.Read()
	assert.NoError(t, err)
	assert.Equal(t, "G1 X1", c.Text)

	c, err = r.Read()
	assert.NoError(t, err)
	assert.Equal(t, "G0 Y2", c.Text)

	c, err = r.Read()
	assert.NoError(t, err)
	assert.Equal(t, Block{{W: 'M', Arg: 5}}, c.Block)

	_, err = r.Read()
	assert.Error(t, err)
	assert.Equal(t, io.EOF, err)
}
