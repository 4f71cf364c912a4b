package machine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/lasergrbl/ledger"
)

type fakeAdapter struct {
	mx      sync.Mutex
	lines   []string
	opts    []SendOptions
	bytes   []byte
	resets  int
	drained int

	// hold makes blocking sends wait for ctx.
	hold bool
}

func (f *fakeAdapter) Send(ctx context.Context, line string, opt SendOptions) error {
	f.mx.Lock()
	f.lines = append(f.lines, line)
	f.opts = append(f.opts, opt)
	hold := f.hold
	f.mx.Unlock()
	if hold && opt.Blocking {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeAdapter) WriteByte(b byte) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.bytes = append(f.bytes, b)
	return nil
}

func (f *fakeAdapter) SoftReset() error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.resets++
	return nil
}

func (f *fakeAdapter) Drain(ctx context.Context) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.drained++
	return nil
}

func (f *fakeAdapter) sent() []string {
	f.mx.Lock()
	defer f.mx.Unlock()
	return append([]string(nil), f.lines...)
}

func newTestMachine() (*Machine, *fakeAdapter, *ledger.Ledger, *Model) {
	a := &fakeAdapter{}
	l := ledger.New(100, nil)
	m := NewModel(nil)
	return NewMachine(a, l, m, nil), a, l, m
}

func TestMachine_Run(t *testing.T) {
	m, a, l, _ := newTestMachine()

	var progress [][2]int
	err := m.Run(context.Background(), strings.NewReader("g90\n(start) G1 X1.23456\n\n  \nG1 Y2 ; tail\n"), JobOptions{
		Lookahead:    3,
		TrimDecimals: 3,
		Repeat:       2,
		Progress: func(sent, total int) {
			progress = append(progress, [2]int{sent, total})
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"G90", "G1X1.234", "G1Y2", "G90", "G1X1.234", "G1Y2"}, a.sent())
	for _, opt := range a.opts {
		assert.Equal(t, SendOptions{Blocking: true, DrainTo: 3}, opt)
	}
	assert.Equal(t, 1, a.drained)
	require.Len(t, progress, 6)
	assert.Equal(t, [2]int{6, 6}, progress[5])

	var comments []string
	for _, e := range l.GetAllLines(false) {
		require.Equal(t, ledger.Comment, e.State)
		comments = append(comments, e.Text)
	}
	assert.Equal(t, []string{"(START)", "; TAIL", "(START)", "; TAIL"}, comments)
	assert.False(t, m.Running())
}

func TestMachine_RunNotAtZero(t *testing.T) {
	m, a, _, model := newTestMachine()
	require.NoError(t, model.HandleReport("<Idle|MPos:5.000,5.000,0.000|WCO:0.000,0.000,0.000>"))

	err := m.Run(context.Background(), strings.NewReader("G1 X1\n"), JobOptions{})
	assert.ErrorIs(t, err, ErrNotAtZero)
	assert.Empty(t, a.sent())

	err = m.Run(context.Background(), strings.NewReader("G1 X1\n"), JobOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"G1X1"}, a.sent())
}

func TestMachine_Stop(t *testing.T) {
	m, a, _, _ := newTestMachine()
	a.hold = true

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Run(context.Background(), strings.NewReader("G1 X1\nG1 X2\n"), JobOptions{})
	}()
	require.Eventually(t, m.Running, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(a.sent()) == 1 }, time.Second, time.Millisecond)

	err := m.Run(context.Background(), strings.NewReader("G1 X1\n"), JobOptions{})
	assert.ErrorIs(t, err, ErrJobActive)

	require.NoError(t, m.Stop(context.Background()))
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("job did not stop")
	}

	sent := a.sent()
	assert.Equal(t, "G1X1", sent[0])
	assert.Equal(t, "M5", sent[len(sent)-1])
	assert.NotContains(t, sent, "G1X2")
	assert.False(t, m.Running())
}

func TestMachine_Commands(t *testing.T) {
	m, a, l, _ := newTestMachine()
	ctx := context.Background()

	require.NoError(t, m.Jog(ctx, -1, 2.5, 1000))
	require.NoError(t, m.Jog(ctx, 0, 0, 1000))
	require.NoError(t, m.Jog(ctx, 0, -1, 500))
	require.NoError(t, m.GoToZero(ctx, 1200))
	require.NoError(t, m.SetZero(ctx))
	require.NoError(t, m.Home(ctx))
	require.NoError(t, m.Unlock(ctx))
	require.NoError(t, m.PulseLaser(ctx, 1000, 200, 500*time.Millisecond))

	assert.Equal(t, []string{
		"$J=G91G21X-1Y2.5F1000",
		"$J=G91G21Y-1F500",
		"G90G28X0Y0F1200",
		"G92X0Y0Z0",
		"$H",
		"$X",
		"M3S1000F200",
		"G1",
		"G4P0.5",
		"G0M5S0",
	}, a.sent())

	require.NoError(t, m.FeedOverride(OverridePlus10))
	require.NoError(t, m.PowerOverride(OverrideReset))
	require.NoError(t, m.Hold())
	require.NoError(t, m.Resume())
	assert.Error(t, m.FeedOverride(OverrideStep(42)))
	assert.Equal(t, []byte{CmdFeedPlus10, CmdPowerReset, CmdFeedHold, CmdCycleStart}, a.bytes)

	l.StoreComment("(x)")
	require.NoError(t, m.Reset())
	assert.Equal(t, 1, a.resets)
	assert.Empty(t, l.GetAllLines(true))
}

func TestParseOverrideStep(t *testing.T) {
	s, err := ParseOverrideStep("-10")
	require.NoError(t, err)
	assert.Equal(t, OverrideMinus10, s)

	_, err = ParseOverrideStep("+5")
	assert.Error(t, err)
}

func TestIsRealtime(t *testing.T) {
	assert.True(t, IsRealtime('?'))
	assert.True(t, IsRealtime(CmdSoftReset))
	assert.True(t, IsRealtime(CmdPowerMinus1))
	assert.False(t, IsRealtime('G'))
}
