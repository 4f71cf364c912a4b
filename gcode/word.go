package gcode

import (
	"regexp"
	"strconv"
	"strings"
)

type Word struct {
	W   byte
	Arg float64
}

func (w Word) IsAxis() bool {
	switch w.W {
	case 'X', 'Y', 'Z':
		return true
	}
	return false
}

func (w Word) IsValid() bool {
	return w.W >= 'A' && w.W <= 'Z'
}

func formatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	return strings.TrimRight(s, ".")
}

func (w Word) String() string {
	return string(w.W) + formatFloat(w.Arg, 3)
}

// rxWord matches a letter followed by a number; sign and decimals are optional
// and blanks may separate the two.
var rxWord = regexp.MustCompile(`([A-Z])[ \t]*([+-]?(?:\d+\.?\d*|\.\d+))`)

// parseWords extracts every word from an upper-cased command. Anything that
// is not a letter followed by a number is ignored.
func parseWords(s string) Block {
	m := rxWord.FindAllStringSubmatch(s, -1)
	res := make(Block, 0, len(m))
	for _, sub := range m {
		v, err := strconv.ParseFloat(sub[2], 64)
		if err != nil {
			continue
		}
		res = append(res, Word{W: sub[1][0], Arg: v})
	}
	return res
}
