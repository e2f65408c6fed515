// config/config_test.go
package config

import (
	"context"
	"testing"
	"time"

	"ledbank-go/bus"
	"ledbank-go/types"
)

func overrideLookup(t *testing.T, raw string) {
	t.Helper()
	old := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) {
		if device != "testdev" {
			return nil, false
		}
		return []byte(raw), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = old })
}

func TestConfig_PublishTypedSections(t *testing.T) {
	overrideLookup(t, `{
		"hal": {
			"devices": [
				{"id": "bank0", "type": "bd18378", "params": {"bus": "spi0", "initial_mask": 65}}
			],
			"pollers": [
				{"domain": "env", "kind": "temperature", "name": "cabinet", "verb": "read", "interval_ms": 5000}
			]
		},
		"heartbeat": {"interval_ms": 2000}
	}`)

	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	svc := NewConfigService()

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "testdev")
	svc.Start(ctx, conn)

	// Retained messages replay to this late subscription.
	sub := conn.Subscribe(bus.T(configPrefix, "#"))
	defer conn.Unsubscribe(sub)

	var halCfg *types.HALConfig
	var hbCfg *types.HeartbeatConfig

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && (halCfg == nil || hbCfg == nil) {
		select {
		case m := <-sub.Channel():
			switch p := m.Payload.(type) {
			case types.HALConfig:
				if !m.Retained {
					t.Fatal("hal config must be retained")
				}
				halCfg = &p
			case types.HeartbeatConfig:
				hbCfg = &p
			}
		case <-time.After(10 * time.Millisecond):
		}
	}
	if halCfg == nil || hbCfg == nil {
		t.Fatalf("missing sections: hal=%v hb=%v", halCfg != nil, hbCfg != nil)
	}

	if len(halCfg.Devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(halCfg.Devices))
	}
	dev := halCfg.Devices[0]
	if dev.ID != "bank0" || dev.Type != "bd18378" {
		t.Fatalf("device decoded wrong: %+v", dev)
	}
	params, ok := dev.Params.(map[string]any)
	if !ok || params["bus"] != "spi0" {
		t.Fatalf("params decoded wrong: %#v", dev.Params)
	}
	if n, ok := params["initial_mask"].(float64); !ok || n != 65 {
		t.Fatalf("initial_mask decoded wrong: %#v", params["initial_mask"])
	}

	if len(halCfg.Pollers) != 1 {
		t.Fatalf("expected 1 poller, got %d", len(halCfg.Pollers))
	}
	p := halCfg.Pollers[0]
	if p.Kind != types.KindTemperature || p.Verb != "read" || p.IntervalMs != 5000 {
		t.Fatalf("poller decoded wrong: %+v", p)
	}

	if hbCfg.IntervalMs != 2000 {
		t.Fatalf("heartbeat decoded wrong: %+v", hbCfg)
	}
}

func TestConfig_DefaultPicoConfigParses(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("test-default")
	svc := NewConfigService()

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "pico-ledbank")
	if err := svc.publishConfig(ctx, conn); err != nil {
		t.Fatalf("default config did not publish: %v", err)
	}

	sub := conn.Subscribe(bus.T(configPrefix, "hal"))
	defer conn.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		cfg, ok := m.Payload.(types.HALConfig)
		if !ok {
			t.Fatalf("payload type %T", m.Payload)
		}
		if len(cfg.Devices) != 2 {
			t.Fatalf("expected bank + sensor, got %d devices", len(cfg.Devices))
		}
	case <-time.After(1 * time.Second):
		t.Fatal("retained hal config not replayed")
	}
}

func TestConfig_MissingDevice(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-missing-device")
	svc := NewConfigService()

	if err := svc.publishConfig(context.Background(), conn); err == nil {
		t.Fatal("expected error for missing device ID, got nil")
	}
}

func TestConfig_NoConfigFound(t *testing.T) {
	overrideLookup(t, `{}`)

	b := bus.NewBus(4)
	conn := b.NewConnection("test-no-config")
	svc := NewConfigService()

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "unknown-device")
	if err := svc.publishConfig(ctx, conn); err == nil {
		t.Fatal("expected error for missing embedded config, got nil")
	}
}

func TestConfig_MalformedJSON(t *testing.T) {
	overrideLookup(t, `{"hal": [not json`)

	b := bus.NewBus(4)
	conn := b.NewConnection("test-bad-json")
	svc := NewConfigService()

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "testdev")
	if err := svc.publishConfig(ctx, conn); err == nil {
		t.Fatal("expected parse error, got nil")
	}
}
