package gcode

import (
	"regexp"
	"strconv"
	"strings"
)

var rxRedundant = regexp.MustCompile(`\+|\s|\(.*?\)|;.*`)

// Sanitizer prepares program lines for streaming: upper case, decimals
// trimmed, comments and blanks removed.
type Sanitizer struct {
	rxDecimals *regexp.Regexp
}

// NewSanitizer keeps at most decimals digits after the decimal point. Zero or
// less disables trimming.
func NewSanitizer(decimals int) *Sanitizer {
	s := &Sanitizer{}
	if decimals > 0 {
		s.rxDecimals = regexp.MustCompile(`(\w[+-]?\d+\.\d{` + strconv.Itoa(decimals) + `})\d+`)
	}
	return s
}

// Line returns the code to send and the first comment found, if any.
func (s *Sanitizer) Line(line string) (code, comment string) {
	line = strings.ToUpper(strings.TrimSpace(line))
	if s.rxDecimals != nil {
		line = s.rxDecimals.ReplaceAllString(line, "$1")
	}
	comment = rxComment.FindString(line)
	code = rxRedundant.ReplaceAllString(line, "")
	return code, comment
}
