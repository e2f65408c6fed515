package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"ledbank-go/bus"
	"ledbank-go/errcode"
	"ledbank-go/types"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type ctrlCall struct {
	Addr    CapAddr
	Verb    string
	Payload any
}

type fakeDevice struct {
	id      string
	caps    []CapabilitySpec
	res     Resources
	initErr error
	inits   atomic.Int32
	closes  atomic.Int32
	calls   chan ctrlCall
	control func(addr CapAddr, verb string, payload any) (Result, error)
}

func newFakeDevice(id string) *fakeDevice {
	return &fakeDevice{
		id: id,
		caps: []CapabilitySpec{{
			Domain: "light",
			Kind:   types.KindLEDBank,
			Info:   types.Info{SchemaVersion: 1, Driver: "fake"},
		}},
		calls: make(chan ctrlCall, 16),
	}
}

func (d *fakeDevice) ID() string { return d.id }

func (d *fakeDevice) Capabilities() []CapabilitySpec { return d.caps }

func (d *fakeDevice) Init(ctx context.Context) error {
	d.inits.Add(1)
	return d.initErr
}

func (d *fakeDevice) Control(addr CapAddr, verb string, payload any) (Result, error) {
	select {
	case d.calls <- ctrlCall{Addr: addr, Verb: verb, Payload: payload}:
	default:
	}
	if d.control != nil {
		return d.control(addr, verb, payload)
	}
	return Result{OK: true}, nil
}

func (d *fakeDevice) Close() error {
	d.closes.Add(1)
	return nil
}

type builderFunc func(ctx context.Context, in BuilderInput) (Device, error)

func (f builderFunc) Build(ctx context.Context, in BuilderInput) (Device, error) {
	return f(ctx, in)
}

// registerFake wires dev under typ and captures the injected Resources
// so tests can emit events the way a real device would.
func registerFake(typ string, dev *fakeDevice) {
	RegisterBuilder(typ, builderFunc(func(ctx context.Context, in BuilderInput) (Device, error) {
		dev.res = in.Res
		return dev, nil
	}))
}

// -----------------------------------------------------------------------------
// Harness
// -----------------------------------------------------------------------------

func startHAL(t *testing.T) (*bus.Bus, *bus.Connection) {
	t.Helper()
	b := bus.NewBus(64)
	h := NewHAL(b.NewConnection("hal"), Resources{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	conn := b.NewConnection("test")
	t.Cleanup(conn.Disconnect)
	awaitHALLevel(t, conn, "starting")
	return b, conn
}

func awaitHALLevel(t *testing.T, conn *bus.Connection, level string) {
	t.Helper()
	sub := conn.Subscribe(bus.T("hal", "state"))
	defer conn.Unsubscribe(sub)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.HALState); ok && st.Level == level {
				return
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatalf("hal never reached level %q", level)
}

func publishConfig(conn *bus.Connection, cfg types.HALConfig) {
	conn.Publish(conn.NewMessage(bus.T("config", "hal"), cfg, true))
}

func request(t *testing.T, conn *bus.Connection, topic bus.Topic, payload any) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := conn.RequestWait(ctx, conn.NewMessage(topic, payload, false))
	if err != nil {
		t.Fatalf("request on %v failed: %v", topic, err)
	}
	return m.Payload
}

func bankAddr(name string) CapAddr {
	return CapAddr{Domain: "light", Kind: string(types.KindLEDBank), Name: name}
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestAnnounceAndControl(t *testing.T) {
	dev := newFakeDevice("bank0")
	registerFake("t_announce", dev)

	_, conn := startHAL(t)
	publishConfig(conn, types.HALConfig{
		Devices: []types.HALDevice{{ID: "bank0", Type: "t_announce"}},
	})
	awaitHALLevel(t, conn, "ready")

	// Retained info and initial link-down status replay to a late subscriber.
	infoSub := conn.Subscribe(capInfo(bankAddr("bank0")))
	defer conn.Unsubscribe(infoSub)
	select {
	case m := <-infoSub.Channel():
		info, ok := m.Payload.(types.Info)
		if !ok || info.Driver != "fake" {
			t.Fatalf("unexpected info payload: %#v", m.Payload)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("no retained capability info")
	}

	stSub := conn.Subscribe(capStatus(bankAddr("bank0")))
	defer conn.Unsubscribe(stSub)
	select {
	case m := <-stSub.Channel():
		st, ok := m.Payload.(types.CapabilityStatus)
		if !ok || st.Link != types.LinkDown {
			t.Fatalf("unexpected initial status: %#v", m.Payload)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("no retained capability status")
	}

	// Control round trip.
	reply := request(t, conn, capCtrl(bankAddr("bank0"), "set"), types.LEDBankSet{Channel: 3, On: true})
	if ok, _ := reply.(types.OKReply); !ok.OK {
		t.Fatalf("expected OK reply, got %#v", reply)
	}
	select {
	case call := <-dev.calls:
		if call.Verb != "set" {
			t.Fatalf("device saw verb %q", call.Verb)
		}
		if p, ok := call.Payload.(types.LEDBankSet); !ok || p.Channel != 3 || !p.On {
			t.Fatalf("device saw payload %#v", call.Payload)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("device never saw the control call")
	}
}

func TestControlBeforeConfigIsNotReady(t *testing.T) {
	_, conn := startHAL(t)

	reply := request(t, conn, capCtrl(bankAddr("bank0"), "set"), nil)
	er, ok := reply.(types.ErrorReply)
	if !ok || er.Error != string(errcode.HALNotReady) {
		t.Fatalf("expected hal_not_ready, got %#v", reply)
	}
}

func TestControlUnknownCapability(t *testing.T) {
	dev := newFakeDevice("bank0")
	registerFake("t_unknown_cap", dev)

	_, conn := startHAL(t)
	publishConfig(conn, types.HALConfig{
		Devices: []types.HALDevice{{ID: "bank0", Type: "t_unknown_cap"}},
	})
	awaitHALLevel(t, conn, "ready")

	reply := request(t, conn, capCtrl(bankAddr("nope"), "set"), nil)
	er, ok := reply.(types.ErrorReply)
	if !ok || er.Error != string(errcode.UnknownCapability) {
		t.Fatalf("expected unknown_capability, got %#v", reply)
	}
}

func TestControlErrorsSurfaceAsCodes(t *testing.T) {
	dev := newFakeDevice("bank0")
	dev.control = func(addr CapAddr, verb string, payload any) (Result, error) {
		switch verb {
		case "boom":
			return Result{}, &errcode.E{C: errcode.NoEcho, Op: "set"}
		case "nope":
			return Result{OK: false, Error: errcode.InvalidParams}, nil
		}
		return Result{OK: true}, nil
	}
	registerFake("t_err_codes", dev)

	_, conn := startHAL(t)
	publishConfig(conn, types.HALConfig{
		Devices: []types.HALDevice{{ID: "bank0", Type: "t_err_codes"}},
	})
	awaitHALLevel(t, conn, "ready")

	reply := request(t, conn, capCtrl(bankAddr("bank0"), "boom"), nil)
	if er, ok := reply.(types.ErrorReply); !ok || er.Error != string(errcode.NoEcho) {
		t.Fatalf("expected no_echo, got %#v", reply)
	}

	reply = request(t, conn, capCtrl(bankAddr("bank0"), "nope"), nil)
	if er, ok := reply.(types.ErrorReply); !ok || er.Error != string(errcode.InvalidParams) {
		t.Fatalf("expected invalid_params, got %#v", reply)
	}
}

func TestEmittedValueIsRetainedAndLinksUp(t *testing.T) {
	dev := newFakeDevice("bank0")
	registerFake("t_emit_value", dev)

	_, conn := startHAL(t)
	publishConfig(conn, types.HALConfig{
		Devices: []types.HALDevice{{ID: "bank0", Type: "t_emit_value"}},
	})
	awaitHALLevel(t, conn, "ready")

	if !dev.res.Pub.Emit(Event{Addr: bankAddr("bank0"), Payload: types.LEDBankValue{Mask: 0x0F}}) {
		t.Fatal("emit rejected")
	}

	valSub := conn.Subscribe(capValue(bankAddr("bank0")))
	stSub := conn.Subscribe(capStatus(bankAddr("bank0")))
	defer conn.Unsubscribe(valSub)
	defer conn.Unsubscribe(stSub)

	gotVal, gotUp := false, false
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && (!gotVal || !gotUp) {
		select {
		case m := <-valSub.Channel():
			if v, ok := m.Payload.(types.LEDBankValue); ok && v.Mask == 0x0F {
				gotVal = true
			}
		case m := <-stSub.Channel():
			if st, ok := m.Payload.(types.CapabilityStatus); ok && st.Link == types.LinkUp {
				gotUp = true
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
	if !gotVal || !gotUp {
		t.Fatalf("missing value/status (value=%v up=%v)", gotVal, gotUp)
	}
}

func TestEmittedErrorDegradesStatus(t *testing.T) {
	dev := newFakeDevice("bank0")
	registerFake("t_emit_err", dev)

	_, conn := startHAL(t)
	publishConfig(conn, types.HALConfig{
		Devices: []types.HALDevice{{ID: "bank0", Type: "t_emit_err"}},
	})
	awaitHALLevel(t, conn, "ready")

	dev.res.Pub.Emit(Event{Addr: bankAddr("bank0"), Err: string(errcode.BusFault)})

	stSub := conn.Subscribe(capStatus(bankAddr("bank0")))
	defer conn.Unsubscribe(stSub)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case m := <-stSub.Channel():
			st, ok := m.Payload.(types.CapabilityStatus)
			if ok && st.Link == types.LinkDegraded {
				if st.Error != string(errcode.BusFault) {
					t.Fatalf("degraded status carries %q", st.Error)
				}
				return
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatal("status never degraded")
}

func TestPollSpecDrivesVerb(t *testing.T) {
	dev := newFakeDevice("bank0")
	registerFake("t_poll", dev)

	_, conn := startHAL(t)
	publishConfig(conn, types.HALConfig{
		Devices: []types.HALDevice{{ID: "bank0", Type: "t_poll"}},
		Pollers: []types.PollSpec{{
			Domain: "light", Kind: types.KindLEDBank, Name: "bank0",
			Verb: "read", IntervalMs: 10,
		}},
	})
	awaitHALLevel(t, conn, "ready")

	deadline := time.Now().Add(2 * time.Second)
	polls := 0
	for time.Now().Before(deadline) && polls < 2 {
		select {
		case call := <-dev.calls:
			if call.Verb == "read" && call.Payload == nil {
				polls++
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
	if polls < 2 {
		t.Fatalf("expected at least 2 polled reads, got %d", polls)
	}
}

func TestConfigReapplyKeepsExistingDevice(t *testing.T) {
	dev := newFakeDevice("bank0")
	registerFake("t_reapply", dev)

	_, conn := startHAL(t)
	cfg := types.HALConfig{Devices: []types.HALDevice{{ID: "bank0", Type: "t_reapply"}}}
	publishConfig(conn, cfg)
	awaitHALLevel(t, conn, "ready")
	publishConfig(conn, cfg)

	// A round trip serialises behind the second config application.
	request(t, conn, capCtrl(bankAddr("bank0"), "set"), types.LEDBankSet{Channel: 0, On: true})

	if n := dev.inits.Load(); n != 1 {
		t.Fatalf("device initialised %d times", n)
	}
}

func TestInitFailureSkipsAndClosesDevice(t *testing.T) {
	dev := newFakeDevice("bank0")
	dev.initErr = &errcode.E{C: errcode.NoEcho, Op: "init"}
	registerFake("t_init_fail", dev)

	_, conn := startHAL(t)
	publishConfig(conn, types.HALConfig{
		Devices: []types.HALDevice{{ID: "bank0", Type: "t_init_fail"}},
	})
	awaitHALLevel(t, conn, "ready")

	if n := dev.closes.Load(); n != 1 {
		t.Fatalf("failed device closed %d times", n)
	}
	reply := request(t, conn, capCtrl(bankAddr("bank0"), "set"), nil)
	if er, ok := reply.(types.ErrorReply); !ok || er.Error != string(errcode.UnknownCapability) {
		t.Fatalf("expected unknown_capability for failed device, got %#v", reply)
	}
}
