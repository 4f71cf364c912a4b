package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizer_Line(t *testing.T) {
	s := NewSanitizer(3)

	check := func(in, code, comment string) {
		t.Helper()
		c, cm := s.Line(in)
		assert.Equal(t, code, c, in)
		assert.Equal(t, comment, cm, in)
	}

	check("G1 X10.123456 Y-3.5 (cut) F1000", "G1X10.123Y-3.5F1000", "(CUT)")
	check("g0 x+1.00001", "G0X1.000", "")
	check("  ; only a comment", "", "; ONLY A COMMENT")
	check("", "", "")
	check("M3 S1000", "M3S1000", "")
}

func TestSanitizer_NoTrim(t *testing.T) {
	s := NewSanitizer(0)
	code, _ := s.Line("G1 X1.123456")
	assert.Equal(t, "G1X1.123456", code)
}
