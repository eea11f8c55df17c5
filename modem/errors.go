package modem

import (
	"errors"
	"fmt"
	"time"

	"i4.energy/across/nbiotgw/at"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has no transport, for example when the Dialer returned none.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed, or when a command is sent after Close.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrTransportTimeout is the cause of a CommandError when neither
	// terminal marker arrived within the command timeout.
	ErrTransportTimeout = errors.New("transport timeout")

	// ErrCommandRejected is the cause of a CommandError when the modem
	// answered with ERROR.
	ErrCommandRejected = errors.New("command rejected")

	// ErrConnectionNotEstablished is returned by MQTT operations attempted
	// before a connection id was discovered.
	ErrConnectionNotEstablished = errors.New("mqtt connection not established")

	// ErrPayloadTooLarge is returned when a publish payload exceeds the
	// buffer size negotiated at Open.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrBringUpTimeout is returned when the network did not attach within
	// the configured number of polls.
	ErrBringUpTimeout = errors.New("network attach timeout")

	// ErrOperatorNotSelected is returned when waiting for attach before any
	// operator selection. The modem never attaches to an unset operator.
	ErrOperatorNotSelected = errors.New("operator not selected")

	// ErrUnexpectedResponse is returned when a status query succeeded but
	// its response lines could not be understood.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// CommandError describes a failed AT transaction. It unwraps to either
// ErrTransportTimeout or ErrCommandRejected.
type CommandError struct {
	// Cmd is the command text as sent, without terminator.
	Cmd string
	// Buffer holds every byte read for this command: the partial reply on
	// timeout, the full reply on rejection.
	Buffer []byte
	// Response is the parsed rejected reply. Nil on timeout.
	Response *at.Response
	// Elapsed is the time spent waiting for the reply.
	Elapsed time.Duration
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v after %s (response %q)", e.Cmd, e.Err, e.Elapsed.Round(time.Millisecond), e.Buffer)
}

func (e *CommandError) Unwrap() error { return e.Err }
