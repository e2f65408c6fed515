package main

import (
	"context"

	"ledbank-go/bus"
	"ledbank-go/services/config"
	"ledbank-go/services/console"
	"ledbank-go/services/hal"
	"ledbank-go/services/heartbeat"
)

const deviceID = "pico-ledbank"

// Development entrypoint. On the host the platform registry hands out
// loopback buses and the console speaks stdio, so the whole service
// stack can be driven interactively without hardware.
func main() {
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, deviceID)

	println("[main] bootstrapping bus ...")
	b := bus.NewBus(8)

	println("[main] starting hal.Run ...")
	go hal.Run(ctx, b.NewConnection("hal"))

	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	hb := &heartbeat.Service{}
	if err := hb.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		println("[main] heartbeat start failed:", err.Error())
	}

	// Console owns the foreground; EOF on stdin ends the session.
	console.Run(ctx, b.NewConnection("console"), console.NewPort())
	println("[main] console closed; exiting")
}
