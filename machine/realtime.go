package machine

import "fmt"

// Real-time commands are single bytes the controller acts on immediately,
// without going through its line buffer.
const (
	CmdStatus     byte = '?'
	CmdFeedHold   byte = '!'
	CmdCycleStart byte = '~'
	CmdSoftReset  byte = 0x18
	CmdSafetyDoor byte = 0x84
	CmdJogCancel  byte = 0x85

	CmdFeedReset   byte = 0x90
	CmdFeedPlus10  byte = 0x91
	CmdFeedMinus10 byte = 0x92
	CmdFeedPlus1   byte = 0x93
	CmdFeedMinus1  byte = 0x94

	CmdRapidReset byte = 0x95
	CmdRapid50    byte = 0x96
	CmdRapid25    byte = 0x97

	CmdPowerReset   byte = 0x99
	CmdPowerPlus10  byte = 0x9A
	CmdPowerMinus10 byte = 0x9B
	CmdPowerPlus1   byte = 0x9C
	CmdPowerMinus1  byte = 0x9D
)

// IsRealtime reports whether b is sent to the controller directly instead of
// as part of a line.
func IsRealtime(b byte) bool {
	switch b {
	case CmdStatus, CmdFeedHold, CmdCycleStart, CmdSoftReset:
		return true
	}
	return b >= 0x80
}

// OverrideStep is a relative change of a feed or power override.
type OverrideStep int

const (
	OverrideReset OverrideStep = iota
	OverridePlus1
	OverrideMinus1
	OverridePlus10
	OverrideMinus10
)

// ParseOverrideStep accepts "reset", "+1", "-1", "+10" and "-10".
func ParseOverrideStep(s string) (OverrideStep, error) {
	switch s {
	case "reset":
		return OverrideReset, nil
	case "+1":
		return OverridePlus1, nil
	case "-1":
		return OverrideMinus1, nil
	case "+10":
		return OverridePlus10, nil
	case "-10":
		return OverrideMinus10, nil
	}
	return 0, fmt.Errorf("unknown override step %q", s)
}

var feedOverride = map[OverrideStep]byte{
	OverrideReset:   CmdFeedReset,
	OverridePlus1:   CmdFeedPlus1,
	OverrideMinus1:  CmdFeedMinus1,
	OverridePlus10:  CmdFeedPlus10,
	OverrideMinus10: CmdFeedMinus10,
}

var powerOverride = map[OverrideStep]byte{
	OverrideReset:   CmdPowerReset,
	OverridePlus1:   CmdPowerPlus1,
	OverrideMinus1:  CmdPowerMinus1,
	OverridePlus10:  CmdPowerPlus10,
	OverrideMinus10: CmdPowerMinus10,
}
