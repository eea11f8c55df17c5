package modem_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"i4.energy/across/nbiotgw/at"
	"i4.energy/across/nbiotgw/modem"
)

func attachedSimModem(t *testing.T, sim *modem.SimTransport) *modem.Modem {
	t.Helper()
	m := newSimModem(t, sim)
	if err := m.BringUp(context.Background(), telenor); err != nil {
		t.Fatalf("unexpected error from BringUp(): %v", err)
	}
	return m
}

var session = modem.SessionOptions{
	Version:   at.MQTT31,
	ClientID:  "group",
	KeepAlive: 600 * time.Second,
}

func TestMQTTOpen(t *testing.T) {
	t.Run("Discovers the connection id", func(t *testing.T) {
		sim := modem.NewSimTransport()
		m := attachedSimModem(t, sim)

		mqtt := m.MQTT()
		if err := mqtt.Open(context.Background(), "10.0.0.1", 1883, 10*time.Second, 512); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id, ok := mqtt.ConnectionID(); !ok || id != 0 {
			t.Errorf("expected connection 0, got %d (ok=%v)", id, ok)
		}
		if mqtt.BufferSize() != 512 {
			t.Errorf("expected buffer size 512, got %d", mqtt.BufferSize())
		}

		cmds := sim.Commands()
		if got := cmds[len(cmds)-2]; got != `AT+CMQNEW="10.0.0.1","1883",10000,512` {
			t.Errorf("unexpected create command %q", got)
		}
		if got := cmds[len(cmds)-1]; got != "AT+CMQNEW?" {
			t.Errorf("expected status query after create, got %q", got)
		}
	})

	t.Run("Rejected before attach", func(t *testing.T) {
		m := newSimModem(t, modem.NewSimTransport())

		err := m.MQTT().Open(context.Background(), "10.0.0.1", 1883, 10*time.Second, 512)
		if !errors.Is(err, modem.ErrCommandRejected) {
			t.Errorf("expected ErrCommandRejected, got: %v", err)
		}
		if _, ok := m.MQTT().ConnectionID(); ok {
			t.Error("no connection id expected after a failed open")
		}
	})

	t.Run("ErrConnectionNotEstablished when status shows no server", func(t *testing.T) {
		sim := modem.NewSimTransport()
		m := attachedSimModem(t, sim)
		sim.Respond("AT+CMQNEW?", "+CMQNEW: 0,0,null\r\n\r\nOK\r\n")

		err := m.MQTT().Open(context.Background(), "10.0.0.1", 1883, 10*time.Second, 512)
		if !errors.Is(err, modem.ErrConnectionNotEstablished) {
			t.Errorf("expected ErrConnectionNotEstablished, got: %v", err)
		}
	})
}

func TestMQTTSession(t *testing.T) {
	open := func(t *testing.T) (*modem.SimTransport, *modem.MQTT) {
		t.Helper()
		sim := modem.NewSimTransport()
		mqtt := attachedSimModem(t, sim).MQTT()
		if err := mqtt.Open(context.Background(), "10.0.0.1", 1883, 10*time.Second, 512); err != nil {
			t.Fatalf("unexpected error from Open(): %v", err)
		}
		return sim, mqtt
	}

	t.Run("Connect sends session options", func(t *testing.T) {
		sim, mqtt := open(t)

		if err := mqtt.Connect(context.Background(), session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cmds := sim.Commands()
		if got := cmds[len(cmds)-1]; got != `AT+CMQCON=0,3,"group",600,0,0` {
			t.Errorf("unexpected connect command %q", got)
		}
		if mqtt.Session() != session {
			t.Errorf("session options not recorded: %+v", mqtt.Session())
		}
	})

	t.Run("Connect with credentials", func(t *testing.T) {
		sim, mqtt := open(t)

		opts := session
		opts.Version = at.MQTT311
		opts.CleanSession = true
		opts.Username, opts.Password = "user", "secret"
		if err := mqtt.Connect(context.Background(), opts); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cmds := sim.Commands()
		if got := cmds[len(cmds)-1]; got != `AT+CMQCON=0,4,"group",600,1,0,"user","secret"` {
			t.Errorf("unexpected connect command %q", got)
		}
	})

	t.Run("Publish strips line breaks", func(t *testing.T) {
		sim, mqtt := open(t)
		if err := mqtt.Connect(context.Background(), session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		err := mqtt.Publish(context.Background(), "ubiss/temperature", "group,temperature,21.5,\r\nts,10:00:00\n", at.ExactlyOnce)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		published := sim.Published()
		if len(published) != 1 {
			t.Fatalf("expected 1 publish, got %d", len(published))
		}
		want := modem.SimPublish{Topic: "ubiss/temperature", QoS: 2, Message: "group,temperature,21.5,ts,10:00:00"}
		if published[0] != want {
			t.Errorf("expected %+v, got %+v", want, published[0])
		}
	})

	t.Run("ErrPayloadTooLarge leaves the modem untouched", func(t *testing.T) {
		sim, mqtt := open(t)
		before := len(sim.Commands())

		err := mqtt.Publish(context.Background(), "ubiss/x", strings.Repeat("a", 513), at.AtMostOnce)
		if !errors.Is(err, modem.ErrPayloadTooLarge) {
			t.Errorf("expected ErrPayloadTooLarge, got: %v", err)
		}
		if len(sim.Commands()) != before {
			t.Error("oversized payload reached the modem")
		}
	})

	t.Run("Buffer sized payload is accepted", func(t *testing.T) {
		sim, mqtt := open(t)
		if err := mqtt.Connect(context.Background(), session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := mqtt.Publish(context.Background(), "ubiss/x", strings.Repeat("a", 512), at.AtMostOnce); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(sim.Published()) != 1 {
			t.Error("publish not received")
		}
	})

	t.Run("Invalid QoS", func(t *testing.T) {
		_, mqtt := open(t)

		err := mqtt.Publish(context.Background(), "ubiss/x", "a", at.QoS(3))
		if !errors.Is(err, at.ErrUnknownVariant) {
			t.Errorf("expected ErrUnknownVariant, got: %v", err)
		}
	})

	t.Run("Close forgets the connection", func(t *testing.T) {
		sim, mqtt := open(t)

		if err := mqtt.Close(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cmds := sim.Commands()
		if got := cmds[len(cmds)-1]; got != "AT+CMQDISCON=0" {
			t.Errorf("unexpected disconnect command %q", got)
		}
		if err := mqtt.Publish(context.Background(), "ubiss/x", "a", at.AtMostOnce); !errors.Is(err, modem.ErrConnectionNotEstablished) {
			t.Errorf("expected ErrConnectionNotEstablished after close, got: %v", err)
		}
		if err := mqtt.Close(context.Background()); !errors.Is(err, modem.ErrConnectionNotEstablished) {
			t.Errorf("expected ErrConnectionNotEstablished on second close, got: %v", err)
		}
	})
}

func TestMQTTWithoutConnection(t *testing.T) {
	m := newSimModem(t, modem.NewSimTransport())
	mqtt := m.MQTT()
	ctx := context.Background()

	if err := mqtt.Connect(ctx, session); !errors.Is(err, modem.ErrConnectionNotEstablished) {
		t.Errorf("Connect: expected ErrConnectionNotEstablished, got: %v", err)
	}
	if err := mqtt.Publish(ctx, "ubiss/x", "a", at.AtMostOnce); !errors.Is(err, modem.ErrConnectionNotEstablished) {
		t.Errorf("Publish: expected ErrConnectionNotEstablished, got: %v", err)
	}
	if err := mqtt.Close(ctx); !errors.Is(err, modem.ErrConnectionNotEstablished) {
		t.Errorf("Close: expected ErrConnectionNotEstablished, got: %v", err)
	}
}
