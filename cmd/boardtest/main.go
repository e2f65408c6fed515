//go:build rp2040 || rp2350

// cmd/boardtest/main.go
//
// Cabinet bring-up: walks every LED bank channel through the full
// service stack and checks that sensor values keep arriving. Flash
// this before trusting a newly assembled board.
package main

import (
	"context"
	"time"

	"machine"

	"ledbank-go/bus"
	"ledbank-go/services/config"
	"ledbank-go/services/hal"
	"ledbank-go/types"
)

const (
	deviceID = "pico-ledbank"

	halReadyTimeout = 5 * time.Second

	// Channel walk timing.
	stepDelay = 300 * time.Millisecond
	dwellAll  = 2 * time.Second

	// The embedded config polls temperature every 5s.
	freshMaxAge = 8 * time.Second

	// 0 = loop forever.
	cyclesToRun = 0

	bankName = "bank0"
)

// ---------- Topics ----------

func tBankCtrl(verb string) bus.Topic {
	return bus.T("hal", "cap", "light", string(types.KindLEDBank), bankName, "control", verb)
}

var (
	tHALState = bus.T("hal", "state")
	tTempVal  = bus.T("hal", "cap", "env", string(types.KindTemperature), "+", "value")
)

// ---------- Helpers ----------

func waitHALReady(c *bus.Connection, d time.Duration) bool {
	sub := c.Subscribe(tHALState)
	defer c.Unsubscribe(sub)

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.HALState); ok && st.Level == "ready" {
				return true
			}
		case <-time.After(10 * time.Millisecond):
		}
	}
	return false
}

func reqOK(ui *bus.Connection, topic bus.Topic, payload any) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := ui.RequestWait(ctx, ui.NewMessage(topic, payload, false))
	if err != nil {
		println("[boardtest] request timed out")
		return false
	}
	switch p := reply.Payload.(type) {
	case types.OKReply:
		return p.OK
	case types.ErrorReply:
		println("[boardtest] control error:", p.Error)
		return false
	default:
		println("[boardtest] unexpected reply payload")
		return false
	}
}

func setChannel(ui *bus.Connection, ch uint8, on bool) bool {
	return reqOK(ui, tBankCtrl("set"), types.LEDBankSet{Channel: ch, On: on})
}

func setMask(ui *bus.Connection, mask uint16) bool {
	return reqOK(ui, tBankCtrl("set_mask"), types.LEDBankMask{Mask: mask})
}

func flashOutcome(led machine.Pin, pass bool) {
	if pass {
		// Double short.
		for i := 0; i < 2; i++ {
			led.High()
			time.Sleep(120 * time.Millisecond)
			led.Low()
			time.Sleep(200 * time.Millisecond)
		}
		return
	}
	// Single long.
	led.High()
	time.Sleep(400 * time.Millisecond)
	led.Low()
	time.Sleep(200 * time.Millisecond)
}

// ---------- Main ----------

func main() {
	time.Sleep(2 * time.Second)
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, deviceID)

	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})

	b := bus.NewBus(4)
	ui := b.NewConnection("ui")

	go hal.Run(ctx, b.NewConnection("hal"))
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	if !waitHALReady(ui, halReadyTimeout) {
		println("[boardtest] HAL not ready within timeout; continuing")
	}

	// Track sensor arrivals; the poller should keep these fresh.
	subTemp := ui.Subscribe(tTempVal)
	defer ui.Unsubscribe(subTemp)
	var tsTemp time.Time
	go func() {
		for m := range subTemp.Channel() {
			if _, ok := m.Payload.(types.TemperatureValue); ok {
				tsTemp = time.Now()
			}
		}
	}()

	cycle := 0
	for {
		cycle++
		println("=== boardtest: cycle", cycle, "===")
		failures := 0

		// Walk up: one channel at a time, front to back.
		for ch := uint8(0); ch < 12; ch++ {
			if !setChannel(ui, ch, true) {
				println("[boardtest] channel on failed:", ch)
				failures++
			}
			time.Sleep(stepDelay)
		}
		time.Sleep(dwellAll)

		// Walk down in reverse.
		for ch := int(11); ch >= 0; ch-- {
			if !setChannel(ui, uint8(ch), false) {
				println("[boardtest] channel off failed:", ch)
				failures++
			}
			time.Sleep(stepDelay)
		}

		// Whole-bank flush both ways.
		if !setMask(ui, 0x0FFF) {
			println("[boardtest] all-on mask failed")
			failures++
		}
		time.Sleep(dwellAll)
		if !setMask(ui, 0x0000) {
			println("[boardtest] all-off mask failed")
			failures++
		}

		if tsTemp.IsZero() || time.Since(tsTemp) > freshMaxAge {
			println("[boardtest] temperature stale or missing")
			failures++
		}

		pass := failures == 0
		if pass {
			println("[PASS] bank walked; sensor values fresh")
		} else {
			println("[FAIL] failures:", failures)
		}
		flashOutcome(led, pass)

		if cyclesToRun > 0 && cycle >= cyclesToRun {
			println("completed", cycle, "cycles; halting")
			return
		}
	}
}
