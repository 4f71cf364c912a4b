package gcode

import (
	"bytes"
	"io"
)

// Parse reads every command in data.
func Parse(data string) ([]Command, error) {
	r := NewParser(bytes.NewBufferString(data))
	var cmds []Command
	for {
		c, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

func MustParse(data string) []Command {
	c, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return c
}
