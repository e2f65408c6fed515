//go:build rp2040 || rp2350

// On-target check of the bus semantics. `go test ./bus` covers the same
// ground on the host; this binary proves the scheduler-dependent parts
// (drop-oldest delivery, request timeouts) on the Pico itself.
package main

import (
	"context"
	"sort"
	"time"

	"machine"

	"ledbank-go/bus"
)

// --- helpers ------------------------------------------------------------------

func expectPayload(sub *bus.Subscription, want string, timeout time.Duration) bool {
	select {
	case got := <-sub.Channel():
		s, ok := got.Payload.(string)
		return ok && s == want
	case <-time.After(timeout):
		return false
	}
}

func expectSilence(sub *bus.Subscription, timeout time.Duration) bool {
	select {
	case <-sub.Channel():
		return false
	case <-time.After(timeout):
		return true
	}
}

func drainStrings(sub *bus.Subscription, n int, deadline time.Time) ([]string, bool) {
	var out []string
	for len(out) < n && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			s, ok := m.Payload.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		case <-time.After(10 * time.Millisecond):
		}
	}
	return out, len(out) == n
}

func sameSet(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	sort.Strings(got)
	sort.Strings(want)
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// --- checks -------------------------------------------------------------------

func checkBasicPubSub() bool {
	b := bus.NewBus(4)
	c := b.NewConnection("selftest")
	sub := c.Subscribe(bus.T("config", "hal"))
	c.Publish(c.NewMessage(bus.T("config", "hal"), "hello", false))
	return expectPayload(sub, "hello", 100*time.Millisecond)
}

func checkRetainedReplay() bool {
	b := bus.NewBus(2)
	c := b.NewConnection("selftest")
	c.Publish(c.NewMessage(bus.T("heartbeat"), "beat", true))
	sub := c.Subscribe(bus.T("heartbeat"))
	return expectPayload(sub, "beat", 100*time.Millisecond)
}

func checkWildcardOne() bool {
	b := bus.NewBus(16)
	c := b.NewConnection("selftest")
	sMid := c.Subscribe(bus.T("hal", "cap", "+", "led_bank", "bank0", "value"))
	sAll := c.Subscribe(bus.T("hal", "cap", "+", "+", "+", "value"))
	sNo := c.Subscribe(bus.T("hal", "cap", "+", "temperature", "bank0", "value"))

	c.Publish(c.NewMessage(bus.T("hal", "cap", "light", "led_bank", "bank0", "value"), "v1", false))
	if !expectPayload(sMid, "v1", 200*time.Millisecond) {
		return false
	}
	if !expectPayload(sAll, "v1", 200*time.Millisecond) {
		return false
	}
	if !expectSilence(sNo, 60*time.Millisecond) {
		return false
	}

	// "+" never spans levels.
	c.Publish(c.NewMessage(bus.T("hal", "cap", "light", "led_bank", "value"), "v2", false))
	return expectSilence(sMid, 60*time.Millisecond) &&
		expectSilence(sAll, 60*time.Millisecond)
}

func checkWildcardRest() bool {
	b := bus.NewBus(16)
	c := b.NewConnection("selftest")
	sHal := c.Subscribe(bus.T("hal", "#"))
	sRoot := c.Subscribe(bus.T("#"))
	sExact := c.Subscribe(bus.T("hal"))

	// "#" matches the empty remainder too.
	c.Publish(c.NewMessage(bus.T("hal"), "p1", false))
	if !expectPayload(sHal, "p1", 200*time.Millisecond) {
		return false
	}
	if !expectPayload(sRoot, "p1", 200*time.Millisecond) {
		return false
	}
	if !expectPayload(sExact, "p1", 200*time.Millisecond) {
		return false
	}

	c.Publish(c.NewMessage(bus.T("hal", "state"), "p2", false))
	if !expectPayload(sHal, "p2", 200*time.Millisecond) {
		return false
	}
	if !expectPayload(sRoot, "p2", 200*time.Millisecond) {
		return false
	}
	return expectSilence(sExact, 60*time.Millisecond)
}

func checkRetainedWildcardReplay() bool {
	b := bus.NewBus(32)
	c := b.NewConnection("selftest")
	c.Publish(c.NewMessage(bus.T("hal", "state"), "r0", true))
	c.Publish(c.NewMessage(bus.T("hal", "cap", "light"), "r1", true))
	c.Publish(c.NewMessage(bus.T("hal", "cap", "env"), "r2", true))

	sub := c.Subscribe(bus.T("hal", "#"))
	got, ok := drainStrings(sub, 3, time.Now().Add(300*time.Millisecond))
	return ok && sameSet(got, []string{"r0", "r1", "r2"})
}

func checkRetainedClear() bool {
	b := bus.NewBus(16)
	c := b.NewConnection("selftest")
	c.Publish(c.NewMessage(bus.T("hal", "state"), "stale", true))
	c.Publish(c.NewMessage(bus.T("heartbeat"), "keep", true))
	c.Publish(c.NewMessage(bus.T("hal", "state"), nil, true))

	sub := c.Subscribe(bus.T("#"))
	got, ok := drainStrings(sub, 1, time.Now().Add(300*time.Millisecond))
	if !ok || got[0] != "keep" {
		return false
	}
	return expectSilence(sub, 60*time.Millisecond)
}

func checkDropOldest() bool {
	b := bus.NewBus(2)
	c := b.NewConnection("selftest")
	sub := c.Subscribe(bus.T("hal", "state"))

	// Queue depth 2; the third publish evicts the first.
	for _, p := range []string{"m1", "m2", "m3"} {
		c.Publish(c.NewMessage(bus.T("hal", "state"), p, false))
	}
	got, ok := drainStrings(sub, 2, time.Now().Add(200*time.Millisecond))
	if !ok || got[0] != "m2" || got[1] != "m3" {
		return false
	}
	return expectSilence(sub, 60*time.Millisecond)
}

func checkRequestWait() bool {
	b := bus.NewBus(8)
	rq := b.NewConnection("requester")
	rs := b.NewConnection("responder")

	topic := bus.T("hal", "cap", "light", "led_bank", "bank0", "control", "read")
	sub := rs.Subscribe(topic)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if msg, ok := <-sub.Channel(); ok {
			rs.Reply(msg, "ok", false)
		}
	}()

	req := rq.NewMessage(topic, nil, false)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	reply, err := rq.RequestWait(ctx, req)
	rs.Unsubscribe(sub)
	<-done

	if err != nil {
		return false
	}
	if s, ok := reply.Payload.(string); !ok || s != "ok" {
		return false
	}
	return len(req.ReplyTo) > 0 && reply.Topic.Equal(req.ReplyTo)
}

func checkRequestTimeout() bool {
	b := bus.NewBus(8)
	rq := b.NewConnection("requester")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := rq.RequestWait(ctx, rq.NewMessage(bus.T("nobody", "home"), nil, false))
	return err != nil
}

func checkManualRequest() bool {
	b := bus.NewBus(8)
	rq := b.NewConnection("requester")
	rs := b.NewConnection("responder")

	topic := bus.T("hal", "cap", "env", "temperature", "cabinet", "control", "read")
	reqSub := rs.Subscribe(topic)
	defer rs.Unsubscribe(reqSub)

	replySub := rq.Request(rq.NewMessage(topic, nil, false))
	defer rq.Unsubscribe(replySub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if msg, ok := <-reqSub.Channel(); ok {
			rs.Reply(msg, "reading", false)
		}
	}()

	ok := expectPayload(replySub, "reading", 300*time.Millisecond)
	<-done
	return ok
}

func checkInvalidTokenPanics() (ok bool) {
	defer func() { ok = recover() != nil }()
	_ = bus.T([]byte{1, 2, 3})
	return false
}

// --- main ---------------------------------------------------------------------

type check struct {
	name string
	fn   func() bool
}

func main() {
	// Give the USB CDC time to enumerate so the report shows up reliably.
	time.Sleep(250 * time.Millisecond)

	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	led.High()

	checks := []check{
		{"basic_pubsub", checkBasicPubSub},
		{"retained_replay", checkRetainedReplay},
		{"wildcard_one", checkWildcardOne},
		{"wildcard_rest", checkWildcardRest},
		{"retained_wildcard_replay", checkRetainedWildcardReplay},
		{"retained_clear", checkRetainedClear},
		{"drop_oldest", checkDropOldest},
		{"request_wait", checkRequestWait},
		{"request_timeout", checkRequestTimeout},
		{"manual_request", checkManualRequest},
		{"invalid_token_panics", checkInvalidTokenPanics},
	}

	passed, failed := 0, 0
	println("== bus self-test starting ==")
	for _, c := range checks {
		if c.fn() {
			println("[PASS]", c.name)
			passed++
		} else {
			println("[FAIL]", c.name)
			failed++
		}
		time.Sleep(10 * time.Millisecond)
	}
	println("== done:", passed, "passed,", failed, "failed ==")

	// Solid LED on success, slow blink forever on failure.
	if failed == 0 {
		for {
			led.High()
			time.Sleep(2 * time.Second)
		}
	}
	for {
		led.High()
		time.Sleep(250 * time.Millisecond)
		led.Low()
		time.Sleep(250 * time.Millisecond)
	}
}
