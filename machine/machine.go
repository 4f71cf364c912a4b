package machine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mastercactapus/lasergrbl/gcode"
	"github.com/mastercactapus/lasergrbl/ledger"
)

// ZeroTolerance is how far from work zero a job may start without being
// forced.
const ZeroTolerance = 0.1

var (
	ErrJobActive = errors.New("a job is already running")
	ErrNotAtZero = errors.New("machine is not at work zero")
	ErrStopped   = errors.New("job stopped")
)

// JobOptions configure Machine.Run.
type JobOptions struct {
	// Lookahead is the number of lines kept queued ahead of the last
	// acknowledged one.
	Lookahead int

	// TrimDecimals limits the number of digits after the decimal point; zero
	// sends numbers unchanged.
	TrimDecimals int

	// Repeat runs the program this many times, at least once.
	Repeat int

	// Force starts the job even if the machine is away from work zero.
	Force bool

	// Progress, if set, is called after every line sent.
	Progress func(sent, total int)
}

// Machine drives jobs and manual moves through an Adapter.
type Machine struct {
	Adapter

	ledger *ledger.Ledger
	model  *Model
	log    *zap.Logger

	mx     sync.Mutex
	cancel context.CancelCauseFunc
}

func NewMachine(a Adapter, l *ledger.Ledger, m *Model, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{
		Adapter: a,
		ledger:  l,
		model:   m,
		log:     log,
	}
}

// Running reports whether a job is being sent.
func (m *Machine) Running() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.cancel != nil
}

type jobLine struct {
	code    string
	comment string
}

func readJob(r io.Reader, s *gcode.Sanitizer) (lines []jobLine, total int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1024*1024)
	for sc.Scan() {
		code, comment := s.Line(sc.Text())
		if code == "" && comment == "" {
			continue
		}
		if code != "" {
			total++
		}
		lines = append(lines, jobLine{code: code, comment: comment})
	}
	return lines, total, sc.Err()
}

// Run sends the program in r line by line, then waits until every line has
// been acknowledged. Comments are stored in the ledger as they are reached.
func (m *Machine) Run(ctx context.Context, r io.Reader, opt JobOptions) error {
	if !opt.Force && !m.model.State().AtWorkZero(ZeroTolerance) {
		return ErrNotAtZero
	}
	if opt.Repeat < 1 {
		opt.Repeat = 1
	}

	lines, total, err := readJob(r, gcode.NewSanitizer(opt.TrimDecimals))
	if err != nil {
		return fmt.Errorf("read job: %w", err)
	}
	total *= opt.Repeat

	m.mx.Lock()
	if m.cancel != nil {
		m.mx.Unlock()
		return ErrJobActive
	}
	ctx, cancel := context.WithCancelCause(ctx)
	m.cancel = cancel
	m.mx.Unlock()
	defer func() {
		m.mx.Lock()
		m.cancel = nil
		m.mx.Unlock()
		cancel(nil)
	}()

	start := time.Now()
	m.log.Info("job started", zap.Int("lines", total), zap.Int("repeat", opt.Repeat))

	var sent int
	for pass := 0; pass < opt.Repeat; pass++ {
		for _, l := range lines {
			if ctx.Err() != nil {
				return m.stopped(ctx, sent)
			}
			if l.comment != "" {
				m.ledger.StoreComment(l.comment)
			}
			if l.code == "" {
				continue
			}

			err := m.Send(ctx, l.code, SendOptions{Blocking: true, DrainTo: opt.Lookahead})
			if errors.Is(err, context.Canceled) {
				return m.stopped(ctx, sent)
			}
			if err != nil {
				return fmt.Errorf("send line %d: %w", sent+1, err)
			}
			sent++
			if opt.Progress != nil {
				opt.Progress(sent, total)
			}
		}
	}

	if err := m.Drain(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return m.stopped(ctx, sent)
		}
		return fmt.Errorf("drain: %w", err)
	}

	m.log.Info("job finished", zap.Int("lines", sent), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (m *Machine) stopped(ctx context.Context, sent int) error {
	if errors.Is(context.Cause(ctx), ErrStopped) {
		m.log.Info("job stopped", zap.Int("lines", sent))
		return ErrStopped
	}
	return ctx.Err()
}

// Stop stops feeding the running job and turns the laser off. Lines already
// sent still run.
func (m *Machine) Stop(ctx context.Context) error {
	m.mx.Lock()
	cancel := m.cancel
	m.mx.Unlock()
	if cancel != nil {
		cancel(ErrStopped)
	}
	return m.Send(ctx, "M5", SendOptions{})
}

// Reset stops the running job, resets the controller and clears the ledger.
func (m *Machine) Reset() error {
	m.mx.Lock()
	if m.cancel != nil {
		m.cancel(ErrStopped)
	}
	m.mx.Unlock()

	if err := m.SoftReset(); err != nil {
		return err
	}
	m.ledger.Clear()
	return nil
}

func (m *Machine) sendBlock(ctx context.Context, prefix string, b gcode.Block) error {
	return m.Send(ctx, prefix+b.String(), SendOptions{})
}

// Jog moves relative to the current position. The move can be cancelled
// with CmdJogCancel.
func (m *Machine) Jog(ctx context.Context, dx, dy, feed float64) error {
	if dx == 0 && dy == 0 {
		return nil
	}
	b := gcode.Block{{W: 'G', Arg: 91}, {W: 'G', Arg: 21}}
	if dx != 0 {
		b = append(b, gcode.Word{W: 'X', Arg: dx})
	}
	if dy != 0 {
		b = append(b, gcode.Word{W: 'Y', Arg: dy})
	}
	b = append(b, gcode.Word{W: 'F', Arg: feed})
	return m.sendBlock(ctx, "$J=", b)
}

// GoToZero moves to work zero on X and Y.
func (m *Machine) GoToZero(ctx context.Context, feed float64) error {
	return m.sendBlock(ctx, "", gcode.Block{
		{W: 'G', Arg: 90},
		{W: 'G', Arg: 28},
		{W: 'X', Arg: 0},
		{W: 'Y', Arg: 0},
		{W: 'F', Arg: feed},
	})
}

// SetZero makes the current position the work zero.
func (m *Machine) SetZero(ctx context.Context) error {
	return m.sendBlock(ctx, "", gcode.Block{
		{W: 'G', Arg: 92},
		{W: 'X', Arg: 0},
		{W: 'Y', Arg: 0},
		{W: 'Z', Arg: 0},
	})
}

func (m *Machine) Home(ctx context.Context) error   { return m.Send(ctx, "$H", SendOptions{}) }
func (m *Machine) Unlock(ctx context.Context) error { return m.Send(ctx, "$X", SendOptions{}) }

// PulseLaser fires the laser in place for d.
func (m *Machine) PulseLaser(ctx context.Context, power, feed float64, d time.Duration) error {
	lines := []string{
		gcode.Block{{W: 'M', Arg: 3}, {W: 'S', Arg: power}, {W: 'F', Arg: feed}}.String(),
		"G1",
		"G4P" + strconv.FormatFloat(d.Seconds(), 'f', -1, 64),
		"G0M5S0",
	}
	for _, l := range lines {
		if err := m.Send(ctx, l, SendOptions{}); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) FeedOverride(step OverrideStep) error {
	b, ok := feedOverride[step]
	if !ok {
		return fmt.Errorf("unknown override step %d", step)
	}
	return m.WriteByte(b)
}

func (m *Machine) PowerOverride(step OverrideStep) error {
	b, ok := powerOverride[step]
	if !ok {
		return fmt.Errorf("unknown override step %d", step)
	}
	return m.WriteByte(b)
}

func (m *Machine) Hold() error   { return m.WriteByte(CmdFeedHold) }
func (m *Machine) Resume() error { return m.WriteByte(CmdCycleStart) }
