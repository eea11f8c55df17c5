package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -destination=mock_modem.go -package=modem . Transport,Dialer

// Transport represents an established, bidirectional byte stream to the modem.
//
// A Transport is assumed to be already connected and ready for use. Read must
// return after a bounded time even when no data arrives, reporting (0, nil) in
// that case, the way a serial port with a read timeout does. The channel relies
// on this to enforce per-command timeouts.
type Transport interface {
	io.ReadWriteCloser

	// ResetInputBuffer discards bytes received but not yet read, typically
	// unsolicited output the modem produced between two commands.
	ResetInputBuffer() error
}

// Dialer opens a Transport to the modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port or test double) and is intended to be used during modem
// construction only. Once a Transport is obtained, the Dialer is no longer
// needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport.
	// It returns an error if the transport cannot be established.
	Dial(ctx context.Context) (Transport, error)
}

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 200 * time.Millisecond
)

// SerialDialer opens the modem over a local serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. "/dev/ttyAMA0".
	PortName string
	// BaudRate is used when Mode is nil. Zero means DefaultBaudRate.
	BaudRate int
	// Mode overrides the complete line setting.
	Mode *serial.Mode
	// ReadTimeout bounds a single Read. Zero means DefaultReadTimeout.
	ReadTimeout time.Duration
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = DefaultBaudRate
		}
		mode = &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("modem: open %s: %w", d.PortName, err)
	}

	readTimeout := d.ReadTimeout
	if readTimeout == 0 {
		readTimeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("modem: set read timeout on %s: %w", d.PortName, err)
	}
	return port, nil
}
