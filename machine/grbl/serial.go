package grbl

import (
	"io"
	"time"

	"github.com/tarm/serial"
)

// serialReadTimeout lets the receiver notice a closed connection.
const serialReadTimeout = 100 * time.Millisecond

// OpenSerial opens a serial port at baud, 8N1.
func OpenSerial(port string, baud int) (io.ReadWriteCloser, error) {
	return serial.OpenPort(&serial.Config{
		Name:        port,
		Baud:        baud,
		ReadTimeout: serialReadTimeout,
	})
}
