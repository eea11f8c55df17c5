package modem

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"i4.energy/across/nbiotgw/at"
)

// SimTransport is a test helper that emulates a SIM7020 modem behind a serial
// port. It answers the AT grammar used by this package with echo enabled and
// keeps just enough state (radio, operator, profile, MQTT slot) to drive a
// full bring-up and publish sequence.
//
// Reads return (0, nil) after a short pause when no data is pending, like a
// serial port with a read timeout. SimTransport is also a Dialer returning
// itself. Exported for use in tests of other packages.
type SimTransport struct {
	mu      sync.Mutex
	pending []byte
	closed  bool

	writes    []SimWrite
	published []SimPublish
	responses map[string]string

	radio       bool
	operator    string
	profile     bool
	attached    bool
	attachAfter int
	polls       int
	server      string
	session     bool
}

// SimWrite is one command received by SimTransport.
type SimWrite struct {
	At  time.Time
	Cmd string
}

// SimPublish is one accepted AT+CMQPUB.
type SimPublish struct {
	Topic   string
	QoS     int
	Message string
}

const simReadPause = 2 * time.Millisecond

// NewSimTransport creates a modem with the radio off and no MQTT connection.
func NewSimTransport() *SimTransport {
	return &SimTransport{responses: map[string]string{}}
}

func (t *SimTransport) Dial(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Respond overrides the reply to every command starting with prefix. reply
// is what follows the echo, e.g. "ERROR\r\n". An empty reply leaves the
// command unanswered.
func (t *SimTransport) Respond(prefix, reply string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses[prefix] = reply
}

// AttachAfter makes the first n PDP context queries report no context.
func (t *SimTransport) AttachAfter(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attachAfter = n
}

// ConnectStale pretends an MQTT connection survived from an earlier run.
func (t *SimTransport) ConnectStale(server string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.server = server
}

// Inject queues unsolicited bytes, as if the modem sent a URC.
func (t *SimTransport) Inject(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, data...)
}

func (t *SimTransport) Writes() []SimWrite {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SimWrite(nil), t.writes...)
}

// Commands returns the command texts received so far.
func (t *SimTransport) Commands() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	cmds := make([]string, len(t.writes))
	for i, w := range t.writes {
		cmds[i] = w.Cmd
	}
	return cmds
}

func (t *SimTransport) Published() []SimPublish {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SimPublish(nil), t.published...)
}

func (t *SimTransport) Radio() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.radio
}

func (t *SimTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	cmd := strings.TrimSuffix(string(p), at.CRLF)
	t.writes = append(t.writes, SimWrite{At: time.Now(), Cmd: cmd})
	t.pending = append(t.pending, cmd+at.EchoSeparator...)
	t.pending = append(t.pending, t.reply(cmd)...)
	return len(p), nil
}

func (t *SimTransport) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.EOF
	}
	if len(t.pending) == 0 {
		t.mu.Unlock()
		time.Sleep(simReadPause)
		return 0, nil
	}
	n = copy(p, t.pending)
	t.pending = t.pending[n:]
	t.mu.Unlock()
	return n, nil
}

func (t *SimTransport) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = nil
	return nil
}

func (t *SimTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func simOK(lines ...string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l + at.BlockSeparator)
	}
	b.WriteString(at.SuccessTerminal)
	return b.String()
}

const simError = at.FailureTerminal

func (t *SimTransport) reply(cmd string) string {
	for prefix, r := range t.responses {
		if strings.HasPrefix(cmd, prefix) {
			return r
		}
	}

	switch {
	case strings.HasPrefix(cmd, "AT+CREVHEX="):
		return simOK()
	case cmd == at.CmdRadioOff:
		t.radio, t.attached = false, false
		return simOK()
	case cmd == at.CmdRadioOn:
		t.radio = true
		return simOK()
	case cmd == at.CmdRadioStatus:
		if t.radio {
			return simOK("+CFUN: 1")
		}
		return simOK("+CFUN: 0")
	case cmd == at.CmdOperatorAuto:
		t.operator = "auto"
		return simOK()
	case strings.HasPrefix(cmd, "AT+COPS=1,2,"):
		t.operator = strings.Trim(strings.Split(strings.TrimPrefix(cmd, "AT+COPS=1,2,"), ",")[0], `"`)
		return simOK()
	case cmd == at.CmdOperator:
		if t.radio && t.operator != "" {
			return simOK(`+COPS: 1,2,"23802",9`)
		}
		return simOK()
	case strings.HasPrefix(cmd, "AT*MCGDEFCONT="):
		t.profile = true
		return simOK()
	case cmd == at.CmdPDPContext:
		if t.radio && t.operator != "" && t.profile {
			t.polls++
			if t.polls > t.attachAfter {
				t.attached = true
			}
		}
		if t.attached {
			return simOK(`+CGCONTRDP: 1,5,"telenor.iot","10.0.0.2.255.255.255.0"`)
		}
		return simOK()
	case cmd == at.CmdSignal:
		return simOK("+CSQ: 20,99")
	case cmd == at.CmdRegistration:
		if t.attached {
			return simOK("+CGREG: 0,1")
		}
		return simOK("+CGREG: 0,2")
	case cmd == at.CmdMQTTStatus:
		if t.server != "" {
			return simOK(fmt.Sprintf(`+CMQNEW: 0,1,"%s"`, t.server))
		}
		return simOK("+CMQNEW: 0,0,null")
	case strings.HasPrefix(cmd, "AT+CMQNEW="):
		if !t.attached || t.server != "" {
			return simError
		}
		t.server = strings.Trim(strings.Split(strings.TrimPrefix(cmd, "AT+CMQNEW="), ",")[0], `"`)
		return simOK("+CMQNEW: 0")
	case strings.HasPrefix(cmd, "AT+CMQCON="):
		if t.server == "" {
			return simError
		}
		t.session = true
		return simOK()
	case strings.HasPrefix(cmd, "AT+CMQPUB="):
		return t.publish(strings.TrimPrefix(cmd, "AT+CMQPUB="))
	case strings.HasPrefix(cmd, "AT+CMQDISCON="):
		if t.server == "" {
			return simError
		}
		t.server, t.session = "", false
		return simOK()
	}
	return simError
}

// publish checks <id>,"<topic>",<qos>,<retained>,<dup>,<len>,"<message>".
func (t *SimTransport) publish(args string) string {
	if !t.session {
		return simError
	}
	fields := strings.SplitN(args, ",", 7)
	if len(fields) != 7 {
		return simError
	}
	var qos, length int
	if _, err := fmt.Sscan(fields[2], &qos); err != nil {
		return simError
	}
	if _, err := fmt.Sscan(fields[5], &length); err != nil {
		return simError
	}
	msg := strings.TrimSuffix(strings.TrimPrefix(fields[6], `"`), `"`)
	if length != len(msg) {
		return simError
	}
	t.published = append(t.published, SimPublish{Topic: strings.Trim(fields[1], `"`), QoS: qos, Message: msg})
	return simOK()
}
