package main

import (
	"context"
	"runtime"
	"time"

	"ledbank-go/bus"
	"ledbank-go/services/config"
	"ledbank-go/services/console"
	"ledbank-go/services/hal"
	"ledbank-go/services/heartbeat"
)

const deviceID = "pico-ledbank"

// printTopic prints a topic path with println-friendly tokens (no fmt).
func printTopic(prefix string, t bus.Topic) {
	print(prefix)
	print(" ")
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			print("/")
		}
		switch v := t.At(i).(type) {
		case string:
			print(v)
		case int:
			print(v)
		case int32:
			print(int(v))
		case int64:
			print(int(v))
		default:
			print("?")
		}
	}
	println()
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(3 * time.Second)
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, deviceID)

	println("[main] bootstrapping bus ...")
	b := bus.NewBus(4)

	// Diagnostics go to the debug console (USB CDC); the operator console
	// runs on UART0, so the two streams never interleave.
	mon := b.NewConnection("monitor").Subscribe(bus.T("hal", "#"))
	go func() {
		for m := range mon.Channel() {
			printTopic("[monitor] <-", m.Topic)
		}
	}()

	println("[main] starting hal.Run ...")
	go hal.Run(ctx, b.NewConnection("hal"))

	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	hb := &heartbeat.Service{}
	if err := hb.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		println("[main] heartbeat start failed:", err.Error())
	}

	go func() {
		for {
			time.Sleep(10 * time.Second)
			printMem()
		}
	}()

	println("[main] starting console on uart0 ...")
	console.Run(ctx, b.NewConnection("console"), console.NewPort())
}

// printMem prints a compact snapshot of TinyGo runtime memory stats.
// Uses builtin println to avoid fmt overhead/allocations.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"heapSys:", uint32(ms.HeapSys),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}
