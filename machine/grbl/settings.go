package grbl

import (
	"context"
	"errors"

	"github.com/mastercactapus/lasergrbl/machine"
)

// ErrSettingsTimeout is returned when a settings dump does not finish in
// time.
var ErrSettingsTimeout = errors.New("timed out waiting for settings")

// RequestSettings sends `$$` and waits until the last setting has been
// received. Settings are stored on the machine model as they arrive; the
// ones received so far are returned even on error.
func (l *Link) RequestSettings(ctx context.Context) (map[string]float64, error) {
	done := make(chan struct{})
	l.mx.Lock()
	l.wantSettings = true
	l.settingsDone = done
	l.mx.Unlock()

	err := l.Send(ctx, "$$", machine.SendOptions{})
	if err == nil {
		ctx, cancel := context.WithTimeoutCause(ctx, l.cfg.SettingsTimeout, ErrSettingsTimeout)
		defer cancel()
		select {
		case <-done:
		case <-ctx.Done():
			err = context.Cause(ctx)
		}
	}

	if err != nil {
		l.mx.Lock()
		if l.settingsDone == done {
			l.wantSettings = false
		}
		l.mx.Unlock()
	}
	return l.model.State().Settings, err
}
