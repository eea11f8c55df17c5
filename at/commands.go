package at

import (
	"fmt"
	"strings"
	"time"
)

// Fixed commands of the SIM7020 command set.
const (
	CmdRadioOn       = "AT+CFUN=1"
	CmdRadioOff      = "AT+CFUN=0"
	CmdRadioStatus   = "AT+CFUN?"
	CmdOperatorAuto  = "AT+COPS=0"
	CmdOperator      = "AT+COPS?"
	CmdSignal        = "AT+CSQ"
	CmdRegistration  = "AT+CGREG?"
	CmdPDPContext    = "AT+CGCONTRDP"
	CmdMQTTStatus    = "AT+CMQNEW?"
	PrefixRadio      = "+CFUN:"
	PrefixSignal     = "+CSQ:"
	PrefixReg        = "+CGREG:"
	PrefixMQTTStatus = "+CMQNEW:"
)

// SelectOperator builds the manual operator selection using the numeric
// (short) operator format. An optional access technology may follow.
func SelectOperator(code string, act ...int) string {
	cmd := fmt.Sprintf(`AT+COPS=1,2,"%s"`, code)
	if len(act) > 0 {
		cmd += fmt.Sprintf(",%d", act[0])
	}
	return cmd
}

// credentials renders the optional trailing ,"user" and ,"pass" fields.
// Empty values are left out.
func credentials(user, pass string) string {
	var b strings.Builder
	if user != "" {
		fmt.Fprintf(&b, `,"%s"`, user)
	}
	if pass != "" {
		fmt.Fprintf(&b, `,"%s"`, pass)
	}
	return b.String()
}

func DefaultProfile(t PDPType, apn, user, pass string) string {
	return fmt.Sprintf(`AT*MCGDEFCONT="%s","%s"`, t, apn) + credentials(user, pass)
}

func HexMode(on bool) string {
	return fmt.Sprintf("AT+CREVHEX=%d", boolInt(on))
}

// MQTTNew creates a connection to the broker. The timeout is sent in
// milliseconds.
func MQTTNew(host string, port int, timeout time.Duration, bufferSize int) string {
	return fmt.Sprintf(`AT+CMQNEW="%s","%d",%d,%d`, host, port, timeout.Milliseconds(), bufferSize)
}

// MQTTConnect establishes the session on connection id. Keep-alive is sent
// in seconds; the will flag is always 0.
func MQTTConnect(id int, v ProtocolVersion, clientID string, keepAlive time.Duration, clean bool, user, pass string) string {
	return fmt.Sprintf(`AT+CMQCON=%d,%d,"%s",%d,%d,0`,
		id, int(v), clientID, int(keepAlive/time.Second), boolInt(clean)) + credentials(user, pass)
}

func MQTTDisconnect(id int) string {
	return fmt.Sprintf("AT+CMQDISCON=%d", id)
}

// MQTTPublish publishes message with retained=0 and dup=0. The caller is
// responsible for stripping line breaks from message.
func MQTTPublish(id int, topic string, qos QoS, message string) string {
	return fmt.Sprintf(`AT+CMQPUB=%d,"%s",%d,0,0,%d,"%s"`, id, topic, int(qos), len(message), message)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
