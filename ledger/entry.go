package ledger

import "fmt"

// State is the lifecycle position of a ledger entry.
type State int

const (
	// Queued lines wait in the out-buffer for space in the controller.
	Queued State = iota
	// InBuffer lines were written and wait for `ok` or `error`.
	InBuffer
	Acknowledged
	Errored
	// Cancelled lines were queued or in the controller when it was reset.
	Cancelled

	// Comment, Message and MessageError are history-only entries.
	Comment
	Message
	MessageError
)

var stateNames = [...]string{
	Queued:       "queued",
	InBuffer:     "buffer",
	Acknowledged: "ok",
	Errored:      "error",
	Cancelled:    "cancelled",
	Comment:      "comment",
	Message:      "message",
	MessageError: "alarm",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(data []byte) error {
	for i, name := range stateNames {
		if name == string(data) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown ledger state %q", data)
}

// IsMessage reports whether s is one of the history-only states that are
// shown in the non-verbose projection.
func (s State) IsMessage() bool {
	switch s {
	case Comment, Message, MessageError:
		return true
	}
	return false
}

// Entry is one line in the ledger.
type Entry struct {
	Seq   int64  `json:"seq"`
	State State  `json:"state"`
	Text  string `json:"text"`
}

// Change is published to subscribers after every mutation.
type Change struct {
	Entry Entry `json:"entry"`

	// Cleared is set (with a zero Entry) when the ledger was wiped.
	Cleared bool `json:"cleared,omitempty"`
}
