package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"i4.energy/across/nbiotgw/at"
)

// State is the progress of the network bring-up.
type State int

const (
	Uninitialized State = iota
	RadioOff
	RadioOn
	OperatorSelected
	NetworkAttached
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case RadioOff:
		return "radio-off"
	case RadioOn:
		return "radio-on"
	case OperatorSelected:
		return "operator-selected"
	case NetworkAttached:
		return "network-attached"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// ConnectionState is a snapshot computed from status queries. It is never
// cached; call Status again for fresh values.
type ConnectionState struct {
	RadioEnabled       bool
	OperatorRegistered bool
	PacketAttached     bool
}

// Profile is the default packet data profile used by attach attempts.
type Profile struct {
	Type     at.PDPType
	APN      string
	Username string
	Password string
}

// Network describes a complete bring-up.
type Network struct {
	// Operator is the numeric operator code, e.g. "23802". Empty selects
	// automatic operator selection.
	Operator string
	// OperatorMode is the optional access technology appended to the
	// manual selection, e.g. 9 for NB-IoT; zero leaves it out.
	OperatorMode int
	Profile      Profile
	// Poll bounds the wait for attach; zero values use the modem default.
	Poll PollConfig
}

// SignalQuality is the parsed +CSQ reply.
type SignalQuality struct {
	RSSI int
	BER  int
}

// DBM converts RSSI to dBm. ok is false when the modem reports 99 (unknown).
func (q SignalQuality) DBM() (dbm int, ok bool) {
	if q.RSSI == 99 {
		return 0, false
	}
	return -113 + 2*q.RSSI, true
}

// Registration is the parsed +CGREG reply.
type Registration struct {
	Mode   int
	Status int
}

// Registered reports home (1) or roaming (5) registration.
func (r Registration) Registered() bool { return r.Status == 1 || r.Status == 5 }

// Modem operates a SIM7020-class NB-IoT modem over a Channel.
//
// Modem is safe for concurrent use in the sense that every transaction is
// serialized by the channel, but multi-command sequences such as BringUp
// should be driven by a single caller.
type Modem struct {
	channel     *Channel
	config      Config
	log         *slog.Logger
	state       State
	operatorSet bool
	mqtt        *MQTT
}

// New creates a new Modem instance with the given configuration. It
// establishes the transport connection, switches the modem to raw
// transmission mode and drops an MQTT connection left over from a previous
// run.
//
// Returns an error if the transport connection or modem initialization
// fails.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	m := &Modem{
		channel: NewChannel(transport, config.commandDelay, config.atTimeout, config.logger.With("component", "at")),
		config:  config,
		log:     config.logger,
	}
	m.mqtt = newMQTT(m.channel, config, config.logger.With("component", "mqtt"))

	if err := m.init(ctx); err != nil {
		m.channel.Close()
		return nil, fmt.Errorf("initialize modem: %w", err)
	}
	return m, nil
}

func (m *Modem) init(ctx context.Context) error {
	if err := m.SetHexMode(ctx, false); err != nil {
		return err
	}

	// A connection surviving a restart would hold the only MQTT slot.
	stale, err := m.mqtt.Discover(ctx)
	if err != nil {
		m.log.Warn("Could not query MQTT connection", "error", err)
		return nil
	}
	if stale {
		if err := m.mqtt.Close(ctx); err != nil {
			m.log.Warn("Could not drop stale MQTT connection", "error", err)
		}
	}
	return nil
}

// Channel exposes the underlying AT channel for raw commands.
func (m *Modem) Channel() *Channel { return m.channel }

// MQTT returns the single MQTT adapter bound to this modem.
func (m *Modem) MQTT() *MQTT { return m.mqtt }

// State returns the bring-up progress as tracked from issued commands.
func (m *Modem) State() State { return m.state }

// Close releases the transport. It does not touch the radio.
func (m *Modem) Close() error {
	return m.channel.Close()
}

func (m *Modem) DisableRadio(ctx context.Context) error {
	if _, err := m.channel.Send(ctx, at.CmdRadioOff, m.config.radioOffTimeout); err != nil {
		return fmt.Errorf("disable radio: %w", err)
	}
	m.state = RadioOff
	return nil
}

func (m *Modem) EnableRadio(ctx context.Context) error {
	if _, err := m.channel.Send(ctx, at.CmdRadioOn, 0); err != nil {
		return fmt.Errorf("enable radio: %w", err)
	}
	m.state = RadioOn
	if m.operatorSet {
		m.state = OperatorSelected
	}
	return nil
}

// SelectOperator chooses the network operator by numeric code, optionally
// restricted to an access technology.
func (m *Modem) SelectOperator(ctx context.Context, code string, act ...int) error {
	if _, err := m.channel.Send(ctx, at.SelectOperator(code, act...), 0); err != nil {
		return fmt.Errorf("select operator %s: %w", code, err)
	}
	m.operatorSelected()
	return nil
}

func (m *Modem) SelectOperatorAuto(ctx context.Context) error {
	if _, err := m.channel.Send(ctx, at.CmdOperatorAuto, 0); err != nil {
		return fmt.Errorf("select operator automatically: %w", err)
	}
	m.operatorSelected()
	return nil
}

func (m *Modem) operatorSelected() {
	m.operatorSet = true
	if m.state == RadioOn {
		m.state = OperatorSelected
	}
}

// ConfigureDefaultProfile sets the PDP type and APN used by subsequent
// attach attempts.
func (m *Modem) ConfigureDefaultProfile(ctx context.Context, p Profile) error {
	if _, err := at.ParsePDPType(string(p.Type)); err != nil {
		return err
	}
	if _, err := m.channel.Send(ctx, at.DefaultProfile(p.Type, p.APN, p.Username, p.Password), 0); err != nil {
		return fmt.Errorf("configure default profile: %w", err)
	}
	return nil
}

// SetHexMode selects hex (true) or raw (false) payload transmission.
func (m *Modem) SetHexMode(ctx context.Context, on bool) error {
	if _, err := m.channel.Send(ctx, at.HexMode(on), 0); err != nil {
		return fmt.Errorf("set hex mode: %w", err)
	}
	return nil
}

// OperatorConnected reports whether the operator query returned any data.
func (m *Modem) OperatorConnected(ctx context.Context) (bool, error) {
	resp, err := m.channel.Send(ctx, at.CmdOperator, 0)
	if err != nil {
		return false, fmt.Errorf("query operator: %w", err)
	}
	return resp.HasData(), nil
}

// NetworkAttached reports whether a PDP context is active.
func (m *Modem) NetworkAttached(ctx context.Context) (bool, error) {
	resp, err := m.channel.Send(ctx, at.CmdPDPContext, 0)
	if err != nil {
		return false, fmt.Errorf("query PDP context: %w", err)
	}
	if resp.HasData() {
		m.state = NetworkAttached
		return true, nil
	}
	return false, nil
}

func (m *Modem) radioEnabled(ctx context.Context) (bool, error) {
	resp, err := m.channel.Send(ctx, at.CmdRadioStatus, 0)
	if err != nil {
		return false, fmt.Errorf("query radio: %w", err)
	}
	v, ok := resp.First(at.PrefixRadio)
	if !ok {
		return false, fmt.Errorf("query radio: %w: %q", ErrUnexpectedResponse, resp.Lines)
	}
	return v == "1", nil
}

// Status recomputes the connection state from three status queries.
func (m *Modem) Status(ctx context.Context) (ConnectionState, error) {
	var s ConnectionState
	var err error
	if s.RadioEnabled, err = m.radioEnabled(ctx); err != nil {
		return s, err
	}
	if s.OperatorRegistered, err = m.OperatorConnected(ctx); err != nil {
		return s, err
	}
	if s.PacketAttached, err = m.NetworkAttached(ctx); err != nil {
		return s, err
	}
	return s, nil
}

func (m *Modem) SignalQuality(ctx context.Context) (SignalQuality, error) {
	resp, err := m.channel.Send(ctx, at.CmdSignal, 0)
	if err != nil {
		return SignalQuality{}, fmt.Errorf("query signal quality: %w", err)
	}
	v, ok := resp.First(at.PrefixSignal)
	if !ok {
		return SignalQuality{}, fmt.Errorf("query signal quality: %w: %q", ErrUnexpectedResponse, resp.Lines)
	}
	var q SignalQuality
	if _, err := fmt.Sscanf(v, "%d,%d", &q.RSSI, &q.BER); err != nil {
		return SignalQuality{}, fmt.Errorf("parse %q: %w", v, ErrUnexpectedResponse)
	}
	return q, nil
}

func (m *Modem) Registration(ctx context.Context) (Registration, error) {
	resp, err := m.channel.Send(ctx, at.CmdRegistration, 0)
	if err != nil {
		return Registration{}, fmt.Errorf("query registration: %w", err)
	}
	v, ok := resp.First(at.PrefixReg)
	if !ok {
		return Registration{}, fmt.Errorf("query registration: %w: %q", ErrUnexpectedResponse, resp.Lines)
	}
	fields := strings.Split(v, ",")
	if len(fields) < 2 {
		return Registration{}, fmt.Errorf("parse %q: %w", v, ErrUnexpectedResponse)
	}
	var r Registration
	if r.Mode, err = strconv.Atoi(strings.TrimSpace(fields[0])); err != nil {
		return Registration{}, fmt.Errorf("parse %q: %w", v, ErrUnexpectedResponse)
	}
	if r.Status, err = strconv.Atoi(strings.TrimSpace(fields[1])); err != nil {
		return Registration{}, fmt.Errorf("parse %q: %w", v, ErrUnexpectedResponse)
	}
	return r, nil
}

// WaitAttached polls NetworkAttached until it reports true, at most
// config.MaxRetries times with config.Interval in between. Failed polls
// count as attempts; a closed modem ends the wait immediately.
func (m *Modem) WaitAttached(ctx context.Context, config PollConfig) error {
	if !m.operatorSet {
		return ErrOperatorNotSelected
	}
	config = config.withDefaults(m.config.poll)

	var lastErr error
	for attempt := 1; attempt <= config.MaxRetries; attempt++ {
		attached, err := m.NetworkAttached(ctx)
		switch {
		case err == nil && attached:
			m.log.Info("Network attached", "attempts", attempt)
			return nil
		case errors.Is(err, ErrAlreadyClosed), errors.Is(err, ErrNotInitialized):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		}
		lastErr = err

		if attempt == config.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(config.Interval):
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w after %d polls: %w", ErrBringUpTimeout, config.MaxRetries, lastErr)
	}
	return fmt.Errorf("%w after %d polls", ErrBringUpTimeout, config.MaxRetries)
}

// BringUp runs the full attach sequence: radio off, operator, default
// profile, radio on, then a bounded wait for the PDP context.
func (m *Modem) BringUp(ctx context.Context, n Network) error {
	m.log.Info("Bringing up network", "operator", n.Operator, "apn", n.Profile.APN, "pdp", n.Profile.Type)

	if err := m.DisableRadio(ctx); err != nil {
		return err
	}
	if n.Operator == "" {
		if err := m.SelectOperatorAuto(ctx); err != nil {
			return err
		}
	} else {
		var act []int
		if n.OperatorMode > 0 {
			act = append(act, n.OperatorMode)
		}
		if err := m.SelectOperator(ctx, n.Operator, act...); err != nil {
			return err
		}
	}
	if err := m.ConfigureDefaultProfile(ctx, n.Profile); err != nil {
		return err
	}
	if err := m.EnableRadio(ctx); err != nil {
		return err
	}
	return m.WaitAttached(ctx, n.Poll)
}
