package core

import (
	"context"
	"time"

	"ledbank-go/bus"
	"ledbank-go/errcode"
	"ledbank-go/types"
	"ledbank-go/x/timex"
)

const (
	eventQueueLen = 16
	pollQueueLen  = 4
)

// HAL owns every configured device. All device methods are invoked from
// the Run goroutine, so devices never see concurrent calls; the bus is
// the only way in (control topics) and out (retained state and values).
type HAL struct {
	conn *bus.Connection
	res  Resources

	dev      map[string]Device // device ID -> device
	capIndex map[CapAddr]string

	cfgSub  *bus.Subscription
	ctrlSub *bus.Subscription

	evCh   chan Event
	pollCh chan PollReq
	poller *Poller
}

func NewHAL(conn *bus.Connection, res Resources) *HAL {
	h := &HAL{
		conn:     conn,
		res:      res,
		dev:      make(map[string]Device),
		capIndex: make(map[CapAddr]string),
		evCh:     make(chan Event, eventQueueLen),
		pollCh:   make(chan PollReq, pollQueueLen),
	}
	h.poller = NewPoller(h.pollCh)
	h.res.Pub = h
	return h
}

// Run blocks until ctx is cancelled. Control requests arriving before
// the first config are answered with HALNotReady rather than dropped.
func (h *HAL) Run(ctx context.Context) {
	h.cfgSub = h.conn.Subscribe(topicConfigHAL())
	h.ctrlSub = h.conn.Subscribe(ctrlWildcard())
	defer h.conn.Unsubscribe(h.cfgSub)
	defer h.conn.Unsubscribe(h.ctrlSub)

	go h.poller.Run(ctx)

	h.pubHALState("starting", "")

	ready := false
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.pubHALState("stopped", "")
			return

		case msg := <-h.cfgSub.Channel():
			cfg, ok := msg.Payload.(types.HALConfig)
			if !ok {
				println("[hal] ignoring config with unexpected payload type")
				continue
			}
			h.applyConfig(ctx, cfg)
			if !ready {
				ready = true
				h.pubHALState("ready", "")
			}

		case msg := <-h.ctrlSub.Channel():
			if !ready {
				h.replyErr(msg, errcode.HALNotReady)
				continue
			}
			h.handleControl(msg)

		case req := <-h.pollCh:
			if ready {
				h.handlePoll(req)
			}

		case ev := <-h.evCh:
			h.handleEvent(ev)
		}
	}
}

// applyConfig is additive: devices already built keep running, new ones
// are built, initialized and announced. A failed build or init skips
// that device only.
func (h *HAL) applyConfig(ctx context.Context, cfg types.HALConfig) {
	for i := range cfg.Devices {
		dc := cfg.Devices[i]
		if dc.ID == "" {
			println("[hal] skipping device with empty id, type:", dc.Type)
			continue
		}
		if _, exists := h.dev[dc.ID]; exists {
			continue
		}
		b, ok := lookupBuilder(dc.Type)
		if !ok {
			println("[hal] no builder for type:", dc.Type, "id:", dc.ID)
			continue
		}
		dev, err := b.Build(ctx, BuilderInput{ID: dc.ID, Type: dc.Type, Params: dc.Params, Res: h.res})
		if err != nil {
			println("[hal] build failed:", dc.ID, "err:", err.Error())
			continue
		}
		if err := dev.Init(ctx); err != nil {
			println("[hal] init failed:", dc.ID, "err:", err.Error())
			dev.Close()
			continue
		}
		h.dev[dev.ID()] = dev
		h.announce(dev)
		println("[hal] device up:", dev.ID(), "type:", dc.Type)
	}

	for _, sp := range cfg.Pollers {
		addr := CapAddr{Domain: sp.Domain, Kind: string(sp.Kind), Name: sp.Name}
		if addr.Domain == "" {
			addr.Domain = defaultDomainFor(sp.Kind)
		}
		if sp.IntervalMs == 0 {
			h.poller.Stop(addr, sp.Verb)
			continue
		}
		h.poller.Upsert(addr, sp.Verb,
			time.Duration(sp.IntervalMs)*time.Millisecond,
			time.Duration(sp.JitterMs)*time.Millisecond)
	}
}

// announce publishes the retained info and an initial link-down status
// for each capability. The link flips up on the first good value.
func (h *HAL) announce(dev Device) {
	for _, cs := range dev.Capabilities() {
		addr := CapAddr{Domain: cs.Domain, Kind: string(cs.Kind), Name: cs.Name}
		if addr.Domain == "" {
			addr.Domain = defaultDomainFor(cs.Kind)
		}
		if addr.Name == "" {
			addr.Name = dev.ID()
		}
		h.capIndex[addr] = dev.ID()

		h.conn.Publish(h.conn.NewMessage(capInfo(addr), cs.Info, true))
		h.conn.Publish(h.conn.NewMessage(capStatus(addr), types.CapabilityStatus{
			Link: types.LinkDown,
			TSms: timex.NowMs(),
		}, true))
	}
}

// handleControl expects hal/cap/<domain>/<kind>/<name>/control/<verb>.
func (h *HAL) handleControl(msg *bus.Message) {
	if msg.Topic.Len() < 7 {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	domain, _ := msg.Topic.At(2).(string)
	kind, _ := msg.Topic.At(3).(string)
	name, _ := msg.Topic.At(4).(string)
	verb, _ := msg.Topic.At(6).(string)

	addr := CapAddr{Domain: domain, Kind: kind, Name: name}
	devID, ok := h.capIndex[addr]
	if !ok {
		h.replyErr(msg, errcode.UnknownCapability)
		return
	}
	dev := h.dev[devID]
	if dev == nil {
		h.replyErr(msg, errcode.UnknownCapability)
		return
	}

	res, err := dev.Control(addr, verb, msg.Payload)
	switch {
	case err != nil:
		h.replyFromError(msg, err)
	case res.OK:
		h.replyOK(msg)
	default:
		h.replyErr(msg, res.Error)
	}
}

// handlePoll drives a scheduled verb. Poll results travel as emitted
// events, so there is nobody to reply to here; failures are only logged.
func (h *HAL) handlePoll(req PollReq) {
	devID, ok := h.capIndex[req.Addr]
	if !ok {
		return
	}
	dev := h.dev[devID]
	if dev == nil {
		return
	}
	if _, err := dev.Control(req.Addr, req.Verb, nil); err != nil {
		println("[hal] poll", req.Verb, "failed:", devID, "err:", err.Error())
	}
}

// handleEvent turns a device emission into bus traffic. Errors mark the
// capability degraded; values are retained and mark it up; tagged
// events are fire-and-forget.
func (h *HAL) handleEvent(ev Event) {
	ts := ev.TSms
	if ts == 0 {
		ts = timex.NowMs()
	}

	if ev.Err != "" {
		h.conn.Publish(h.conn.NewMessage(capStatus(ev.Addr), types.CapabilityStatus{
			Link:  types.LinkDegraded,
			TSms:  ts,
			Error: ev.Err,
		}, true))
		return
	}

	if ev.IsEvent {
		h.conn.Publish(h.conn.NewMessage(capEvent(ev.Addr), ev.Payload, false))
		if ev.EventTag != "" {
			h.conn.Publish(h.conn.NewMessage(capEventTagged(ev.Addr, ev.EventTag), ev.Payload, false))
		}
		return
	}

	h.conn.Publish(h.conn.NewMessage(capValue(ev.Addr), ev.Payload, true))
	h.conn.Publish(h.conn.NewMessage(capStatus(ev.Addr), types.CapabilityStatus{
		Link: types.LinkUp,
		TSms: ts,
	}, true))
}

// Emit queues an event for publication from the Run goroutine. It never
// blocks; a full queue drops the event and reports false.
func (h *HAL) Emit(ev Event) bool {
	select {
	case h.evCh <- ev:
		return true
	default:
		println("[hal] event queue full, dropping event for:", ev.Addr.Name)
		return false
	}
}

func (h *HAL) pubHALState(level, status string) {
	h.conn.Publish(h.conn.NewMessage(topicHALState(), types.HALState{
		Level:  level,
		Status: status,
		TSms:   timex.NowMs(),
	}, true))
}

func (h *HAL) closeAll() {
	for id, dev := range h.dev {
		if err := dev.Close(); err != nil {
			println("[hal] close failed:", id, "err:", err.Error())
		}
	}
}

func defaultDomainFor(kind types.Kind) string {
	switch kind {
	case types.KindLEDBank:
		return "light"
	case types.KindTemperature, types.KindHumidity:
		return "env"
	default:
		return "misc"
	}
}
