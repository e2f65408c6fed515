// services/hal/hal.go

// Package hal owns the board's devices and exposes them as bus
// capabilities. Services never touch hardware directly; they publish
// control requests and subscribe to the retained capability tree.
package hal

import (
	"context"

	"ledbank-go/bus"
	"ledbank-go/services/hal/internal/core"
	"ledbank-go/services/hal/internal/platform"

	// Device builders register themselves at init time.
	_ "ledbank-go/services/hal/devices/ledbank"
	_ "ledbank-go/services/hal/devices/thermal"
)

// Run wires the platform's buses into the HAL loop and blocks until
// ctx is cancelled.
func Run(ctx context.Context, conn *bus.Connection) {
	h := core.NewHAL(conn, core.Resources{Reg: platform.NewRegistry()})
	h.Run(ctx)
}
