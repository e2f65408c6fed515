package config

import (
	"context"
	"encoding/json"
	"errors"

	"ledbank-go/bus"
	"ledbank-go/types"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	configPrefix = "config"
	CtxDeviceKey = "device" // context key carrying the device ID
)

// EmbeddedConfigLookup resolves a device ID to raw JSON bytes. Tests
// override this to inject their own configs.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// deviceConfig is the embedded JSON shape. Sections are published as
// typed payloads so subscribers never parse maps themselves.
type deviceConfig struct {
	HAL       types.HALConfig       `json:"hal"`
	Heartbeat types.HeartbeatConfig `json:"heartbeat"`
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct{}

func NewConfigService() *ConfigService { return &ConfigService{} }

// Start publishes the device's config sections, retained, in the
// background. Services that start later still see them via replay.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("[config] publish failed:", err.Error())
		}
	}()
}

func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return errors.New("config: missing device ID in context")
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return errors.New("config: no embedded config for device: " + device)
	}

	var dc deviceConfig
	if err := json.Unmarshal(raw, &dc); err != nil {
		return err
	}

	conn.Publish(conn.NewMessage(bus.T(configPrefix, "hal"), dc.HAL, true))
	conn.Publish(conn.NewMessage(bus.T(configPrefix, "heartbeat"), dc.Heartbeat, true))
	println("[config] published for device:", device)
	return nil
}
