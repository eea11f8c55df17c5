package at

import (
	"errors"
	"fmt"
)

const (
	// Framing markers
	CRLF           = "\r\n"
	EchoSeparator  = "\r\r\n"
	BlockSeparator = "\r\n\r\n"

	// Response Codes
	OK    = "OK"
	ERROR = "ERROR"

	// Terminal markers checked against the tail of the read buffer
	SuccessTerminal = OK + CRLF
	FailureTerminal = ERROR + CRLF

	// Value reported in the server field of an unused MQTT slot
	Null = "null"
)

// ErrUnknownVariant is returned when a label does not name a member of
// one of the closed enumerations below.
var ErrUnknownVariant = errors.New("unknown variant")

// PDPType is the packet data protocol type of the default PSD profile.
type PDPType string

const (
	PDPIP     PDPType = "IP"
	PDPIPv6   PDPType = "IPV6"
	PDPIPv4v6 PDPType = "IPV4V6"
	PDPNonIP  PDPType = "Non-IP"
)

func ParsePDPType(s string) (PDPType, error) {
	switch t := PDPType(s); t {
	case PDPIP, PDPIPv6, PDPIPv4v6, PDPNonIP:
		return t, nil
	}
	return "", fmt.Errorf("pdp type %q: %w", s, ErrUnknownVariant)
}

// ProtocolVersion is the numeric MQTT protocol level sent in AT+CMQCON.
type ProtocolVersion int

const (
	MQTT31  ProtocolVersion = 3
	MQTT311 ProtocolVersion = 4
)

// ParseProtocolVersion maps the human label to its wire code.
func ParseProtocolVersion(label string) (ProtocolVersion, error) {
	switch label {
	case "MQTT 3.1":
		return MQTT31, nil
	case "MQTT 3.1.1":
		return MQTT311, nil
	}
	return 0, fmt.Errorf("mqtt version %q: %w", label, ErrUnknownVariant)
}

func (v ProtocolVersion) String() string {
	switch v {
	case MQTT31:
		return "MQTT 3.1"
	case MQTT311:
		return "MQTT 3.1.1"
	}
	return fmt.Sprintf("ProtocolVersion(%d)", int(v))
}

// QoS is the MQTT quality of service level.
type QoS int

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
)

func (q QoS) Valid() bool { return q >= AtMostOnce && q <= ExactlyOnce }
