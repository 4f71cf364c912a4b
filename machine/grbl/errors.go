package grbl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotConnected is returned by writes while no port is open.
	ErrNotConnected = errors.New("grbl not connected")

	// ErrClosed is returned from a blocking call when the connection is
	// closed before it completes.
	ErrClosed = errors.New("grbl connection closed")

	// ErrReset is returned from blocking calls if a reset is encountered
	// before their lines were acknowledged.
	ErrReset = errors.New("grbl reset")
)

// ConnectionError is returned when the serial port can not be opened.
type ConnectionError struct {
	Port string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ControllerError is an `error:N` response to a line.
type ControllerError struct {
	Code    int
	Message string
}

func (e *ControllerError) Error() string {
	switch {
	case e.Code == 0:
		return "error: " + e.Message
	case e.Message == "":
		return "error:" + strconv.Itoa(e.Code)
	}
	return fmt.Sprintf("error:%d: %s", e.Code, e.Message)
}

func parseControllerError(line string) *ControllerError {
	_, rest, _ := strings.Cut(line, "error:")
	rest = strings.TrimSpace(rest)
	if code, err := strconv.Atoi(rest); err == nil {
		return &ControllerError{Code: code, Message: errorMessages[code]}
	}
	return &ControllerError{Message: rest}
}

// ControllerAlarm is an alarm, hold or door notification. Code is only set
// for `ALARM:N` lines.
type ControllerAlarm struct {
	Code    int
	Text    string
	Message string
}

func (a *ControllerAlarm) Error() string {
	if a.Message == "" {
		return a.Text
	}
	return a.Text + ": " + a.Message
}

func parseControllerAlarm(line string) *ControllerAlarm {
	a := &ControllerAlarm{Text: line}
	if _, rest, ok := strings.Cut(line, "ALARM:"); ok {
		if code, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
			a.Code = code
			a.Message = alarmMessages[code]
		}
	}
	return a
}
