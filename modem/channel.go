package modem

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/nbiotgw/at"
)

// readChunkSize is small so the terminal marker check runs close to every
// byte the modem sends.
const readChunkSize = 64

// Channel runs AT transactions over a Transport, one at a time.
//
// Every transaction holds the channel lock from the pacing sleep until the
// reply is complete, so interleaved writes from concurrent callers can never
// corrupt the framing. The only state kept between transactions is the time
// the previous one completed.
type Channel struct {
	mu        sync.Mutex
	transport Transport
	log       *slog.Logger
	delay     time.Duration
	timeout   time.Duration
	last      time.Time
	closed    bool
}

// NewChannel wraps transport. delay is the minimum spacing between the end
// of one transaction and the next write; timeout is used when Send is given
// none.
func NewChannel(transport Transport, delay, timeout time.Duration, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Channel{
		transport: transport,
		log:       log,
		delay:     delay,
		timeout:   timeout,
	}
}

// Send writes cmd and waits up to timeout for OK or ERROR.
//
// On OK the reply is parsed and returned. Otherwise the error is a
// *CommandError carrying everything read so far; a rejected reply is also
// parsed into CommandError.Response so diagnostic lines are not lost.
// A zero timeout selects the channel default.
func (c *Channel) Send(ctx context.Context, cmd string, timeout time.Duration) (*at.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrAlreadyClosed
	}
	if c.transport == nil {
		return nil, ErrNotInitialized
	}
	if timeout <= 0 {
		timeout = c.timeout
	}
	defer func() {
		c.last = time.Now()
	}()

	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	if err := c.transport.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("discard input before %q: %w", cmd, err)
	}
	if _, err := c.transport.Write([]byte(cmd + at.CRLF)); err != nil {
		return nil, fmt.Errorf("write command %q: %w", cmd, err)
	}

	start := time.Now()
	buf, ok, err := c.read(ctx, start, timeout)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("read reply to %q: %w", cmd, err)
	}

	switch {
	case !ok:
		c.log.Debug("AT timeout", "cmd", cmd, "elapsed", elapsed, "partial", string(buf))
		return nil, &CommandError{Cmd: cmd, Buffer: buf, Elapsed: elapsed, Err: ErrTransportTimeout}
	case bytes.HasSuffix(buf, []byte(at.FailureTerminal)):
		c.log.Debug("AT rejected", "cmd", cmd, "elapsed", elapsed, "response", string(buf))
		return nil, &CommandError{Cmd: cmd, Buffer: buf, Response: at.Parse(buf), Elapsed: elapsed, Err: ErrCommandRejected}
	}

	c.log.Debug("AT ok", "cmd", cmd, "elapsed", elapsed, "response", string(buf))
	return at.Parse(buf), nil
}

// pace sleeps out the remainder of the command delay.
func (c *Channel) pace(ctx context.Context) error {
	wait := c.delay - time.Since(c.last)
	if c.last.IsZero() || wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// read accumulates the reply until it ends with a terminal marker (ok is
// true) or timeout passes (ok is false, buf holds the partial reply).
func (c *Channel) read(ctx context.Context, start time.Time, timeout time.Duration) (buf []byte, ok bool, err error) {
	chunk := make([]byte, readChunkSize)
	for time.Since(start) < timeout {
		if err := ctx.Err(); err != nil {
			return buf, false, err
		}
		n, err := c.transport.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if bytes.HasSuffix(buf, []byte(at.SuccessTerminal)) || bytes.HasSuffix(buf, []byte(at.FailureTerminal)) {
			return buf, true, nil
		}
		if err != nil {
			return buf, false, err
		}
	}
	return buf, false, nil
}

// Close closes the transport. Subsequent sends fail with ErrAlreadyClosed.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrAlreadyClosed
	}
	c.closed = true
	if c.transport == nil {
		return nil
	}
	return c.transport.Close()
}
