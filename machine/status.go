package machine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mastercactapus/lasergrbl/coord"
)

// MalformedReportError describes a status report field that could not be
// parsed. The field is skipped; the rest of the report still applies.
type MalformedReportError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedReportError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed status report %q: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("malformed status field %s:%q: %v", e.Field, e.Value, e.Err)
}

func (e *MalformedReportError) Unwrap() error { return e.Err }

var (
	errNotReport    = errors.New("not enclosed in <>")
	errMissingValue = errors.New("missing value")
	errAxes         = errors.New("need at least 2 axes")
)

type posSource int

const (
	sourceNone posSource = iota
	sourceMachine
	sourceWork
)

// rawFields are kept as tokens instead of being parsed as numbers.
var rawFields = map[string]bool{
	"Pn": true,
	"A":  true,
}

func parseNumbers(data string) ([]float64, error) {
	if data == "" {
		return nil, errMissingValue
	}
	parts := strings.Split(data, ",")
	res := make([]float64, len(parts))
	var err error
	for i, p := range parts {
		res[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func pointOf(vals []float64) (p coord.Point, err error) {
	if len(vals) < 2 {
		return p, errAxes
	}
	p.X, p.Y = vals[0], vals[1]
	if len(vals) > 2 {
		p.Z = vals[2]
	}
	return p, nil
}

// parseStatus applies a `<State|Field:v,v|...>` report on top of stat. It
// returns the position source found in the report and any field errors.
func parseStatus(stat State, data string) (State, posSource, []error) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "<") || !strings.HasSuffix(data, ">") {
		return stat, sourceNone, []error{&MalformedReportError{Value: data, Err: errNotReport}}
	}
	data = strings.TrimSuffix(strings.TrimPrefix(data, "<"), ">")
	parts := strings.Split(data, "|")
	stat.Status = parts[0]

	// grbl omits Pn and A when nothing is active
	stat.Pins = ""
	stat.Accessories = ""

	var errs []error
	src := sourceNone
	for _, s := range parts[1:] {
		name, value, ok := strings.Cut(s, ":")
		if !ok {
			errs = append(errs, &MalformedReportError{Field: s, Err: errMissingValue})
			continue
		}
		if rawFields[name] {
			switch name {
			case "Pn":
				stat.Pins = value
			case "A":
				stat.Accessories = value
			}
			continue
		}

		vals, err := parseNumbers(value)
		if err != nil {
			errs = append(errs, &MalformedReportError{Field: name, Value: value, Err: err})
			continue
		}

		switch name {
		case "MPos", "WPos", "WCO":
			p, err := pointOf(vals)
			if err != nil {
				errs = append(errs, &MalformedReportError{Field: name, Value: value, Err: err})
				continue
			}
			switch name {
			case "MPos":
				stat.MPos, stat.HasMPos = p, true
				src = sourceMachine
			case "WPos":
				stat.WPos, stat.HasWPos = p, true
				if src == sourceNone {
					src = sourceWork
				}
			case "WCO":
				stat.WCO, stat.HasWCO = p, true
			}
		default:
			if stat.Fields == nil {
				stat.Fields = make(map[string][]float64)
			}
			stat.Fields[name] = vals
		}
	}

	return stat, src, errs
}

// derive keeps WPos and MPos consistent through WCO. src is the position the
// controller reports (the other one is computed).
func (s *State) derive(src posSource) {
	if !s.HasWCO {
		return
	}
	switch src {
	case sourceMachine:
		s.WPos, s.HasWPos = s.MPos.Sub(s.WCO), true
	case sourceWork:
		s.MPos, s.HasMPos = s.WPos.Add(s.WCO), true
	}
}
