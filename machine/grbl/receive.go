package grbl

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// readIdle is how long the receiver pauses after a read returns no data.
const readIdle = 10 * time.Millisecond

func (l *Link) readLoop(r io.Reader, stop <-chan struct{}) {
	br := bufio.NewReader(r)
	var partial string
	for {
		select {
		case <-stop:
			return
		default:
		}

		s, err := br.ReadString('\n')
		partial += s
		if err == nil {
			l.dispatch(partial)
			partial = ""
			continue
		}

		// serial ports report a read timeout as EOF
		if err == io.EOF || errors.Is(err, io.ErrNoProgress) {
			select {
			case <-stop:
				return
			case <-time.After(readIdle):
			}
			continue
		}

		select {
		case <-stop:
			return
		default:
		}
		l.log.Error("read from port", zap.Error(err))
		l.Disconnect()
		return
	}
}

// dispatch handles one line received from the controller.
func (l *Link) dispatch(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	switch {
	case line[0] == '<' && line[len(line)-1] == '>':
		if err := l.model.HandleReport(line); err != nil {
			l.log.Warn("malformed status report", zap.String("report", line), zap.Error(err))
		}
	case line == "ok" || strings.HasPrefix(line, "error"):
		l.acknowledge(line)
	case strings.Contains(line, "ALARM"), strings.Contains(line, "Hold"), strings.Contains(line, "Door"):
		alarm := parseControllerAlarm(line)
		l.log.Warn("controller alarm", zap.Error(alarm))
		l.ledger.StoreReceived(alarm.Error(), true)
	case strings.HasPrefix(line, "Grbl "):
		l.controllerReset(line)
	default:
		if l.setting(line) {
			return
		}
		l.log.Debug("message received", zap.String("message", line))
		l.ledger.StoreReceived(line, false)
	}
}

// acknowledge releases the oldest line in the controller buffer.
func (l *Link) acknowledge(line string) {
	isErr := line != "ok"
	var cerr *ControllerError
	if isErr {
		cerr = parseControllerError(line)
		l.log.Warn("controller error", zap.Error(cerr))
	}

	l.mx.Lock()
	if len(l.inflight) > 0 {
		l.outstanding -= l.inflight[0]
		l.inflight = l.inflight[1:]
		l.acked++
	}
	// with nothing in flight the ledger reports the desync
	l.ledger.ReceivedOK(isErr)
	if cerr != nil {
		l.ledger.StoreReceived(cerr.Error(), true)
	}
	l.notifyLocked()
	l.mx.Unlock()
}

// controllerReset handles the startup banner. If anything was queued or in
// flight the controller reset on its own and dropped its buffer.
func (l *Link) controllerReset(banner string) {
	l.mx.Lock()
	var cancelled int
	if len(l.queue) > 0 || len(l.inflight) > 0 {
		cancelled = len(l.resetLocked())
	}
	l.mx.Unlock()

	if cancelled > 0 {
		l.log.Warn("controller reset with lines in flight", zap.String("banner", banner), zap.Int("cancelled", cancelled))
	}
	l.ledger.StoreReceived(banner, false)
}

// setting stores a `$key=value` line while a settings dump is requested. It
// reports whether the line was consumed.
func (l *Link) setting(line string) bool {
	l.mx.Lock()
	want := l.wantSettings
	l.mx.Unlock()
	if !want || line[0] != '$' {
		return false
	}
	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return false
	}

	// older firmware appends a description, e.g. `$0=10 (step pulse, usec)`
	if f := strings.Fields(val); len(f) > 0 {
		val = f[0]
	}
	v, err := strconv.ParseFloat(val, 64)
	if err != nil {
		l.log.Warn("invalid setting", zap.String("line", line), zap.Error(err))
		return true
	}
	l.model.SetSetting(key, v)

	if key == l.cfg.SettingsLastKey {
		l.mx.Lock()
		if l.wantSettings {
			l.wantSettings = false
			close(l.settingsDone)
		}
		l.mx.Unlock()
	}
	return true
}
