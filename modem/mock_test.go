package modem_test

import (
	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/nbiotgw/modem"
)

type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// Command expects one complete transaction: input discard, the command
// write and a single read returning reply.
func (b *MockSequenceBuilder) Command(cmd, reply string) *MockSequenceBuilder {
	wire := []byte(cmd + "\r\n")
	b.calls = append(b.calls,
		b.transport.EXPECT().ResetInputBuffer().Return(nil),
		b.transport.EXPECT().Write(wire).Return(len(wire), nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, reply), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) HexModeOff() *MockSequenceBuilder {
	return b.Command("AT+CREVHEX=0", "AT+CREVHEX=0\r\r\nOK\r\n")
}

func (b *MockSequenceBuilder) HexModeRejected() *MockSequenceBuilder {
	return b.Command("AT+CREVHEX=0", "AT+CREVHEX=0\r\r\nERROR\r\n")
}

func (b *MockSequenceBuilder) MQTTIdle() *MockSequenceBuilder {
	return b.Command("AT+CMQNEW?", "AT+CMQNEW?\r\r\n+CMQNEW: 0,0,null\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) MQTTStale() *MockSequenceBuilder {
	return b.Command("AT+CMQNEW?", "AT+CMQNEW?\r\r\n+CMQNEW: 1,1,\"10.0.0.1\"\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) MQTTDisconnect(id string) *MockSequenceBuilder {
	return b.Command("AT+CMQDISCON="+id, "AT+CMQDISCON="+id+"\r\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

func initMockCalls(transport *modem.MockTransport) []any {
	return NewMockSequence(transport).
		HexModeOff().
		MQTTIdle().
		Build()
}
