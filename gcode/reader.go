package gcode

import "io"

// Reader is implemented by anything producing commands, like Parser.
type Reader interface {
	Read() (Command, error)
}

// CommandsReader replays a fixed list of commands.
type CommandsReader struct {
	Commands []Command
	n        int
}

func (r *CommandsReader) Read() (Command, error) {
	if r.n == len(r.Commands) {
		return Command{}, io.EOF
	}

	r.n++
	return r.Commands[r.n-1], nil
}
