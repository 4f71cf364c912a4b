package gcode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrBinary means the program is not text.
var ErrBinary = errors.New("not a text file")

// DecodeError is returned when a program can not be read as text.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("decode gcode: %v", e.Err)
	}
	return fmt.Sprintf("decode gcode: line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Command is a single motion or configuration command. A physical line can
// hold several, each gets its own Index.
type Command struct {
	// Line is the 1-based physical line in the program.
	Line int
	// Index is the logical line number used as segment provenance.
	Index int

	Text  string
	Block Block
}

type Parser struct {
	br *bufio.Reader

	checked bool
	line    int
	index   int
	pending []Command
}

func NewParser(r io.Reader) *Parser {
	if br, ok := r.(*bufio.Reader); ok {
		return &Parser{br: br}
	}

	return &Parser{br: bufio.NewReader(r)}
}

var rxComment = regexp.MustCompile(`\(.*?\)|;.*`)

// detectPeek is how much of the program is looked at to tell text from
// binary data.
const detectPeek = 3072

func (p *Parser) checkText() error {
	p.checked = true
	head, _ := p.br.Peek(detectPeek)
	if len(head) == 0 {
		return nil
	}
	for m := mimetype.Detect(head); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return nil
		}
	}
	return &DecodeError{Err: ErrBinary}
}

// splitCommands splits a cleaned line before every G word. Text in front of
// the first G (e.g. `M3`) is kept as its own command.
func splitCommands(s string) []string {
	var res []string
	for {
		i := strings.IndexByte(s[1:], 'G')
		if i < 0 {
			break
		}
		res = append(res, s[:i+1])
		s = s[i+1:]
	}
	res = append(res, s)

	out := res[:0]
	for _, c := range res {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Read returns the next command, or io.EOF at the end of the program.
func (p *Parser) Read() (Command, error) {
	if !p.checked {
		if err := p.checkText(); err != nil {
			return Command{}, err
		}
	}

	for len(p.pending) == 0 {
		s, err := p.br.ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		if err != nil {
			return Command{}, err
		}
		p.line++

		if strings.IndexByte(s, 0) >= 0 {
			return Command{}, &DecodeError{Line: p.line, Err: ErrBinary}
		}

		s = rxComment.ReplaceAllString(s, "")
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}

		for _, c := range splitCommands(s) {
			p.index++
			p.pending = append(p.pending, Command{
				Line:  p.line,
				Index: p.index,
				Text:  c,
				Block: parseWords(c),
			})
		}
	}

	cmd := p.pending[0]
	p.pending = p.pending[1:]
	return cmd, nil
}
