// Package ledger records the lifecycle of every line exchanged with the
// controller.
//
// Command lines move queued -> in controller buffer -> acknowledged, errored
// or cancelled. Comments and controller messages go straight to history. All
// entries share one sequence counter, which is the only sort key.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/mastercactapus/lasergrbl/notify"
)

// DefaultRetention is the number of history entries kept when no limit is
// configured.
const DefaultRetention = 300

// ErrDesync is returned when a transition is requested for a FIFO that is
// empty. It means a transmission or acknowledgement was lost or duplicated.
var ErrDesync = errors.New("protocol desync")

// Ledger is safe for concurrent use.
type Ledger struct {
	log       *zap.Logger
	retention int

	mx       sync.Mutex
	queued   []Entry
	inBuffer []Entry
	history  []Entry
	next     int64

	hub notify.Hub[Change]
}

// New creates a Ledger keeping at most retention history entries.
func New(retention int, log *zap.Logger) *Ledger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		log:       log,
		retention: retention,
	}
}

// Subscribe registers fn to be called after every change. fn runs on its own
// goroutine.
func (l *Ledger) Subscribe(fn func(Change)) (cancel func()) { return l.hub.Subscribe(fn) }

// Close stops all subscribers.
func (l *Ledger) Close() { l.hub.Close() }

func (l *Ledger) newEntry(state State, text string) Entry {
	e := Entry{Seq: l.next, State: state, Text: text}
	l.next++
	return e
}

// appendHistory must be called with mx held.
func (l *Ledger) appendHistory(e Entry) {
	l.history = append(l.history, e)
	if extra := len(l.history) - l.retention; extra > 0 {
		copy(l.history, l.history[extra:])
		l.history = l.history[:l.retention]
	}
}

// StoreSend records a new command line as queued.
func (l *Ledger) StoreSend(text string) Entry {
	l.mx.Lock()
	e := l.newEntry(Queued, text)
	l.queued = append(l.queued, e)
	l.mx.Unlock()

	l.hub.Publish(Change{Entry: e})
	return e
}

// SendToBuffer moves the oldest queued line into the controller buffer.
func (l *Ledger) SendToBuffer() (Entry, error) {
	l.mx.Lock()
	if len(l.queued) == 0 {
		l.mx.Unlock()
		l.log.Warn("line sent to controller buffer, but none was queued")
		return Entry{}, fmt.Errorf("send to buffer: no queued line: %w", ErrDesync)
	}
	e := l.queued[0]
	l.queued = l.queued[1:]
	e.State = InBuffer
	l.inBuffer = append(l.inBuffer, e)
	l.mx.Unlock()

	l.hub.Publish(Change{Entry: e})
	return e, nil
}

// ReceivedOK moves the oldest line in the controller buffer to history as
// acknowledged, or errored if isError is set.
func (l *Ledger) ReceivedOK(isError bool) (Entry, error) {
	l.mx.Lock()
	if len(l.inBuffer) == 0 {
		l.mx.Unlock()
		l.log.Warn("acknowledgement received, but no line is in the controller buffer", zap.Bool("error", isError))
		return Entry{}, fmt.Errorf("received ok: no line in controller buffer: %w", ErrDesync)
	}
	e := l.inBuffer[0]
	l.inBuffer = l.inBuffer[1:]
	if isError {
		e.State = Errored
	} else {
		e.State = Acknowledged
	}
	l.appendHistory(e)
	l.mx.Unlock()

	l.hub.Publish(Change{Entry: e})
	return e, nil
}

// StoreComment adds a comment to history.
func (l *Ledger) StoreComment(text string) Entry {
	return l.storeHistory(Comment, text)
}

// StoreReceived adds a message from the controller to history.
func (l *Ledger) StoreReceived(text string, isError bool) Entry {
	if isError {
		return l.storeHistory(MessageError, text)
	}
	return l.storeHistory(Message, text)
}

func (l *Ledger) storeHistory(state State, text string) Entry {
	l.mx.Lock()
	e := l.newEntry(state, text)
	l.appendHistory(e)
	l.mx.Unlock()

	l.log.Debug("added line to history", zap.Int64("seq", e.Seq), zap.Stringer("state", state), zap.String("text", text))
	l.hub.Publish(Change{Entry: e})
	return e
}

// CancelInFlight moves every queued and in-buffer line to history as
// cancelled. A controller reset drops its buffer, so none of them will be
// acknowledged.
func (l *Ledger) CancelInFlight() []Entry {
	l.mx.Lock()
	cancelled := make([]Entry, 0, len(l.inBuffer)+len(l.queued))
	cancelled = append(cancelled, l.inBuffer...)
	cancelled = append(cancelled, l.queued...)
	l.inBuffer = nil
	l.queued = nil
	sort.Slice(cancelled, func(i, j int) bool { return cancelled[i].Seq < cancelled[j].Seq })
	for i := range cancelled {
		cancelled[i].State = Cancelled
		l.appendHistory(cancelled[i])
	}
	l.mx.Unlock()

	for _, e := range cancelled {
		l.hub.Publish(Change{Entry: e})
	}
	return cancelled
}

// Clear drops every entry and restarts numbering.
func (l *Ledger) Clear() {
	l.mx.Lock()
	l.queued = nil
	l.inBuffer = nil
	l.history = nil
	l.next = 0
	l.mx.Unlock()

	l.hub.Publish(Change{Cleared: true})
}

// Counts returns the number of queued, in-buffer and history entries.
func (l *Ledger) Counts() (queued, inBuffer, history int) {
	l.mx.Lock()
	defer l.mx.Unlock()
	return len(l.queued), len(l.inBuffer), len(l.history)
}

// GetAllLines returns a copy of all entries sorted by sequence number. When
// verbose is false only comments and controller messages are returned.
func (l *Ledger) GetAllLines(verbose bool) []Entry {
	l.mx.Lock()
	var lines []Entry
	if verbose {
		lines = make([]Entry, 0, len(l.history)+len(l.inBuffer)+len(l.queued))
		lines = append(lines, l.history...)
		lines = append(lines, l.inBuffer...)
		lines = append(lines, l.queued...)
	} else {
		for _, e := range l.history {
			if e.State.IsMessage() {
				lines = append(lines, e)
			}
		}
	}
	l.mx.Unlock()

	sort.Slice(lines, func(i, j int) bool { return lines[i].Seq < lines[j].Seq })
	return lines
}
