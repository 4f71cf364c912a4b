package grbl

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mastercactapus/lasergrbl/ledger"
	"github.com/mastercactapus/lasergrbl/machine"
)

// Config holds everything fixed for the lifetime of a connection.
type Config struct {
	// RxBufferSize is the size of the controller's serial receive buffer.
	RxBufferSize int
	// BufferMargin is kept free in the receive buffer at all times.
	BufferMargin int

	PollInterval time.Duration
	WakeDelay    time.Duration
	// FlowPoll bounds how long a waiting sender or blocked caller sleeps
	// between checks when no change is signaled.
	FlowPoll time.Duration

	SettingsTimeout time.Duration
	// SettingsLastKey ends a `$$` settings dump.
	SettingsLastKey string

	// Open opens a port; OpenSerial is used if nil.
	Open func(port string, baud int) (io.ReadWriteCloser, error)
}

func DefaultConfig() Config {
	return Config{
		RxBufferSize:    128,
		BufferMargin:    2,
		PollInterval:    200 * time.Millisecond,
		WakeDelay:       500 * time.Millisecond,
		FlowPoll:        2 * time.Millisecond,
		SettingsTimeout: 2 * time.Second,
		SettingsLastKey: "$132",
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if cfg.RxBufferSize <= 0 {
		cfg.RxBufferSize = def.RxBufferSize
	}
	if cfg.BufferMargin < 0 {
		cfg.BufferMargin = 0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.WakeDelay < 0 {
		cfg.WakeDelay = 0
	}
	if cfg.FlowPoll <= 0 {
		cfg.FlowPoll = def.FlowPoll
	}
	if cfg.SettingsTimeout <= 0 {
		cfg.SettingsTimeout = def.SettingsTimeout
	}
	if cfg.SettingsLastKey == "" {
		cfg.SettingsLastKey = def.SettingsLastKey
	}
	if cfg.Open == nil {
		cfg.Open = OpenSerial
	}
	return cfg
}

// Link represents a connection to a Grbl controller. Lines are streamed with
// character-counting flow control: the controller's receive buffer is modeled
// from the length of every line written and released on each `ok` or
// `error`.
type Link struct {
	cfg    Config
	ledger *ledger.Ledger
	model  *machine.Model
	log    *zap.Logger

	// wMx is held for every write so real-time bytes never split a line.
	wMx sync.Mutex

	mx      sync.Mutex
	rw      io.ReadWriteCloser
	port    string
	stop    chan struct{}
	changed chan struct{}

	queue       []string
	inflight    []int
	outstanding int

	enqueued int64
	acked    int64
	gen      int

	wantSettings bool
	settingsDone chan struct{}
}

var _ machine.Adapter = &Link{}

// NewLink creates a disconnected Link that records lines in l and status
// reports in m.
func NewLink(cfg Config, l *ledger.Ledger, m *machine.Model, log *zap.Logger) *Link {
	if log == nil {
		log = zap.NewNop()
	}
	return &Link{
		cfg:     cfg.withDefaults(),
		ledger:  l,
		model:   m,
		log:     log,
		changed: make(chan struct{}),
	}
}

// notifyLocked wakes everything waiting on the flow control state.
func (l *Link) notifyLocked() {
	close(l.changed)
	l.changed = make(chan struct{})
}

// Connect opens port and starts the sender, receiver and status poller. An
// existing connection is closed once the new port has been opened.
func (l *Link) Connect(ctx context.Context, port string, baud int) error {
	rw, err := l.cfg.Open(port, baud)
	if err != nil {
		return &ConnectionError{Port: port, Err: err}
	}
	l.Disconnect()

	if err := l.wake(ctx, rw); err != nil {
		rw.Close()
		return &ConnectionError{Port: port, Err: err}
	}

	stop := make(chan struct{})
	l.mx.Lock()
	l.rw = rw
	l.port = port
	l.stop = stop
	l.notifyLocked()
	l.mx.Unlock()

	go l.readLoop(rw, stop)
	go l.sendLoop(rw, stop)
	go l.pollLoop(stop)

	l.log.Info("connected", zap.String("port", port), zap.Int("baud", baud))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// wake gives the controller time to boot, then sends blank lines to flush
// anything left in its buffer.
func (l *Link) wake(ctx context.Context, w io.Writer) error {
	if err := sleepCtx(ctx, l.cfg.WakeDelay); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\r\n\r\n")); err != nil {
		return err
	}
	return sleepCtx(ctx, l.cfg.WakeDelay)
}

// Disconnect stops all loops and closes the port. Lines not yet acknowledged
// are cancelled. It is safe to call at any time, any number of times.
func (l *Link) Disconnect() error {
	l.mx.Lock()
	if l.stop == nil {
		l.mx.Unlock()
		return nil
	}
	close(l.stop)
	rw, port := l.rw, l.port
	l.stop, l.rw = nil, nil
	l.clearLocked()
	l.wantSettings = false
	l.notifyLocked()
	l.mx.Unlock()

	l.log.Info("disconnected", zap.String("port", port))
	return rw.Close()
}

// Connected reports whether a port is open.
func (l *Link) Connected() bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.stop != nil
}

// Port returns the open port, if any.
func (l *Link) Port() string {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.port
}

// Buffered returns the number of lines waiting to be written, the number of
// lines in the controller buffer and the characters they occupy.
func (l *Link) Buffered() (queued, inflight, chars int) {
	l.mx.Lock()
	defer l.mx.Unlock()
	return len(l.queue), len(l.inflight), l.outstanding
}

// clearLocked forgets every queued and in-flight line.
func (l *Link) clearLocked() []ledger.Entry {
	l.queue = nil
	l.inflight = nil
	l.outstanding = 0
	l.acked = l.enqueued
	return l.ledger.CancelInFlight()
}

// resetLocked is clearLocked for a controller that dropped its buffer; it
// interrupts blocked callers with ErrReset.
func (l *Link) resetLocked() []ledger.Entry {
	l.gen++
	cancelled := l.clearLocked()
	l.notifyLocked()
	return cancelled
}

func (l *Link) write(w io.Writer, p []byte) error {
	l.wMx.Lock()
	defer l.wMx.Unlock()
	_, err := w.Write(p)
	return err
}

// WriteByte will write directly to the port without accounting for
// buffering.
//
// Use for realtime commands like `?`.
func (l *Link) WriteByte(b byte) error {
	l.mx.Lock()
	rw := l.rw
	l.mx.Unlock()
	if rw == nil {
		return ErrNotConnected
	}
	return l.write(rw, []byte{b})
}

// Send queues line for flow-controlled transmission. A single real-time
// command character is written immediately instead, with no ledger entry.
//
// With opt.Blocking set Send returns once all but opt.DrainTo of the lines
// queued so far, this one included, have been acknowledged.
func (l *Link) Send(ctx context.Context, line string, opt machine.SendOptions) error {
	if len(line) == 1 && machine.IsRealtime(line[0]) {
		return l.WriteByte(line[0])
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	l.mx.Lock()
	if l.stop == nil {
		l.mx.Unlock()
		return ErrNotConnected
	}
	l.ledger.StoreSend(line)
	l.queue = append(l.queue, line)
	l.enqueued++
	target := l.enqueued - int64(opt.DrainTo)
	gen := l.gen
	l.notifyLocked()
	l.mx.Unlock()

	if !opt.Blocking {
		return nil
	}
	return l.wait(ctx, gen, func() bool { return l.acked >= target })
}

// Drain returns once nothing is queued or in the controller buffer.
func (l *Link) Drain(ctx context.Context) error {
	l.mx.Lock()
	gen, connected := l.gen, l.stop != nil
	l.mx.Unlock()
	if !connected {
		return ErrNotConnected
	}
	return l.wait(ctx, gen, func() bool { return len(l.queue) == 0 && len(l.inflight) == 0 })
}

// wait blocks until done, which is called with mx held, returns true. It
// wakes on every change and at least every FlowPoll.
func (l *Link) wait(ctx context.Context, gen int, done func() bool) error {
	t := time.NewTicker(l.cfg.FlowPoll)
	defer t.Stop()
	for {
		l.mx.Lock()
		changed := l.changed
		reset := l.gen != gen
		closed := l.stop == nil
		ok := done()
		l.mx.Unlock()

		switch {
		case reset:
			return ErrReset
		case closed:
			return ErrClosed
		case ok:
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		case <-t.C:
		}
	}
}

// SoftReset drops everything queued or in flight, then resets the
// controller. Blocked callers return ErrReset.
func (l *Link) SoftReset() error {
	l.mx.Lock()
	if l.stop == nil {
		l.mx.Unlock()
		return ErrNotConnected
	}
	cancelled := l.resetLocked()
	l.mx.Unlock()

	l.log.Info("soft reset", zap.Int("cancelled", len(cancelled)))
	return l.WriteByte(machine.CmdSoftReset)
}

// reserveLocked pops the next line if the controller buffer has room for it.
// A line longer than the whole buffer is still sent once nothing else is in
// flight.
func (l *Link) reserveLocked() (string, bool) {
	if len(l.queue) == 0 {
		return "", false
	}
	line := l.queue[0]
	n := len(line) + 1
	if len(l.inflight) > 0 && l.outstanding+n > l.cfg.RxBufferSize-l.cfg.BufferMargin {
		return "", false
	}

	l.queue = l.queue[1:]
	l.inflight = append(l.inflight, n)
	l.outstanding += n
	// the ledger logs a desync itself
	l.ledger.SendToBuffer()
	l.notifyLocked()
	return line, true
}

func (l *Link) sendLoop(w io.Writer, stop <-chan struct{}) {
	t := time.NewTicker(l.cfg.FlowPoll)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		default:
		}

		l.mx.Lock()
		line, ok := l.reserveLocked()
		changed := l.changed
		l.mx.Unlock()
		if !ok {
			select {
			case <-stop:
				return
			case <-changed:
			case <-t.C:
			}
			continue
		}

		if err := l.write(w, []byte(line+"\n")); err != nil {
			select {
			case <-stop:
				return
			default:
			}
			l.log.Error("write line", zap.String("line", line), zap.Error(err))
			l.Disconnect()
			return
		}
	}
}

func (l *Link) pollLoop(stop <-chan struct{}) {
	t := time.NewTicker(l.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		err := l.WriteByte(machine.CmdStatus)
		if err != nil && !errors.Is(err, ErrNotConnected) {
			l.log.Debug("request status", zap.Error(err))
		}
	}
}
