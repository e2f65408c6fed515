package core

import (
	"context"

	"ledbank-go/errcode"
	"ledbank-go/types"
)

// ---- Capability & device model ----

// CapAddr identifies one public capability on the bus.
type CapAddr struct {
	Domain string
	Kind   string
	Name   string
}

type CapabilitySpec struct {
	Domain string // e.g. "light", "env"
	Kind   types.Kind
	Name   string // defaults to the device ID
	Info   types.Info
}

// Result is a device's answer to a control verb.
type Result struct {
	OK    bool
	Error errcode.Code // set when OK is false
}

// Device is a configured hardware device owned by the HAL. All methods
// are called from the HAL goroutine; devices need no internal locking.
type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	Init(ctx context.Context) error
	Control(addr CapAddr, verb string, payload any) (Result, error)
	Close() error // release claimed resources
}

// ---- Device → HAL telemetry (single shape) ----
// By default an Event is a value-like update that HAL publishes retained
// to .../value. IsEvent publishes non-retained to .../event instead.
// A non-empty Err publishes only .../status=degraded (retained).

type Event struct {
	Addr     CapAddr
	Payload  any
	TSms     int64
	Err      string // machine-readable short code
	IsEvent  bool
	EventTag string // optional event subtopic, e.g. "fault"
}

// EventEmitter is how devices hand telemetry to the HAL. Emit must be
// non-blocking; false indicates a drop under pressure.
type EventEmitter interface {
	Emit(ev Event) bool
}

// ---- HAL-injected resources ----

type Resources struct {
	Reg ResourceRegistry
	Pub EventEmitter // provided by HAL before builders run
}

type BuilderInput struct {
	ID, Type string
	Params   any
	Res      Resources
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}
