package gcode

import "strings"

type Block []Word

// Arg returns the argument of the first word with letter w.
func (b Block) Arg(w byte) (bool, float64) {
	for _, g := range b {
		if g.W == w {
			return true, g.Arg
		}
	}
	return false, 0
}

// Has reports whether the block contains the exact word.
func (b Block) Has(w byte, arg float64) bool {
	for _, g := range b {
		if g.W == w && g.Arg == arg {
			return true
		}
	}
	return false
}

func (b Block) String() string {
	var sb strings.Builder
	for _, g := range b {
		sb.WriteString(g.String())
	}
	return sb.String()
}
