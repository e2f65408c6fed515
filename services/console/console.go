// services/console/console.go

// Package console is the line-oriented operator interface on the serial
// port. It drives capabilities over the bus the same way any remote
// client would: control verbs by request, state from retained topics.
package console

import (
	"context"
	"io"
	"time"

	"github.com/google/shlex"

	"ledbank-go/bus"
	"ledbank-go/types"
	"ledbank-go/x/conv"
	"ledbank-go/x/strconvx"
)

// Port is the console's serial endpoint. RecvSomeContext returns as
// soon as at least one byte is available or the context ends.
type Port interface {
	io.Writer
	RecvSomeContext(ctx context.Context, p []byte) (int, error)
}

const (
	maxLine    = 128
	replyAfter = time.Second
)

type capRef struct {
	domain, kind, name string
}

type Service struct {
	conn *bus.Connection
	port Port

	caps   []capRef
	values map[capRef]any
	links  map[capRef]string
	hal    string
	beat   types.Heartbeat
	beatOK bool

	lines chan string
}

func Run(ctx context.Context, conn *bus.Connection, port Port) {
	s := &Service{
		conn:   conn,
		port:   port,
		values: make(map[capRef]any),
		links:  make(map[capRef]string),
		lines:  make(chan string, 4),
	}
	s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	stateSub := s.conn.Subscribe(bus.T("hal", "state"))
	infoSub := s.conn.Subscribe(bus.T("hal", "cap", "+", "+", "+", "info"))
	valSub := s.conn.Subscribe(bus.T("hal", "cap", "+", "+", "+", "value"))
	stSub := s.conn.Subscribe(bus.T("hal", "cap", "+", "+", "+", "status"))
	beatSub := s.conn.Subscribe(bus.T("heartbeat"))
	defer s.conn.Unsubscribe(stateSub)
	defer s.conn.Unsubscribe(infoSub)
	defer s.conn.Unsubscribe(valSub)
	defer s.conn.Unsubscribe(stSub)
	defer s.conn.Unsubscribe(beatSub)

	go s.readLines(ctx)

	s.line("ledbank console; type help")

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-stateSub.Channel():
			if st, ok := m.Payload.(types.HALState); ok {
				s.hal = st.Level
			}
		case m := <-infoSub.Channel():
			s.discover(m)
		case m := <-valSub.Channel():
			if ref, ok := refFromTopic(m.Topic); ok {
				s.values[ref] = m.Payload
			}
		case m := <-stSub.Channel():
			if ref, ok := refFromTopic(m.Topic); ok {
				if st, ok := m.Payload.(types.CapabilityStatus); ok {
					s.links[ref] = string(st.Link)
				}
			}
		case m := <-beatSub.Channel():
			if hb, ok := m.Payload.(types.Heartbeat); ok {
				s.beat = hb
				s.beatOK = true
			}
		case l := <-s.lines:
			s.handleLine(ctx, l)
		}
	}
}

// readLines assembles CR/LF-terminated lines from the port. Overlong
// lines are truncated rather than split.
func (s *Service) readLines(ctx context.Context) {
	buf := make([]byte, 64)
	var line []byte
	for {
		n, err := s.port.RecvSomeContext(ctx, buf)
		if err != nil {
			return
		}
		for i := 0; i < n; i++ {
			switch b := buf[i]; b {
			case '\n':
				select {
				case s.lines <- string(line):
				case <-ctx.Done():
					return
				}
				line = line[:0]
			case '\r':
				// ignored; LF terminates
			default:
				if len(line) < maxLine {
					line = append(line, b)
				}
			}
		}
	}
}

func (s *Service) discover(m *bus.Message) {
	ref, ok := refFromTopic(m.Topic)
	if !ok {
		return
	}
	for _, have := range s.caps {
		if have == ref {
			return
		}
	}
	s.caps = append(s.caps, ref)
}

// refFromTopic parses hal/cap/<domain>/<kind>/<name>/...
func refFromTopic(t bus.Topic) (capRef, bool) {
	if t.Len() < 6 {
		return capRef{}, false
	}
	domain, ok1 := t.At(2).(string)
	kind, ok2 := t.At(3).(string)
	name, ok3 := t.At(4).(string)
	if !ok1 || !ok2 || !ok3 {
		return capRef{}, false
	}
	return capRef{domain: domain, kind: kind, name: name}, true
}

func (s *Service) firstOfKind(kind string) (capRef, bool) {
	for _, ref := range s.caps {
		if ref.kind == kind {
			return ref, true
		}
	}
	return capRef{}, false
}

// -----------------------------------------------------------------------------
// Command dispatch
// -----------------------------------------------------------------------------

func (s *Service) handleLine(ctx context.Context, raw string) {
	args, err := shlex.Split(raw)
	if err != nil {
		s.line("err bad_quoting")
		return
	}
	if len(args) == 0 {
		return
	}
	switch args[0] {
	case "help":
		s.cmdHelp()
	case "led":
		s.cmdLED(ctx, args[1:])
	case "mask":
		s.cmdMask(ctx, args[1:])
	case "cal":
		s.cmdCal(ctx, args[1:])
	case "read":
		s.cmdRead(ctx)
	case "state":
		s.cmdState()
	default:
		s.line("err unknown_command; try help")
	}
}

func (s *Service) cmdHelp() {
	s.line("commands:")
	s.line("  led <ch> on|off    switch one channel")
	s.line("  mask <hex>         set all channels, e.g. mask 0x041")
	s.line("  cal <ch> <hex>     set channel calibration")
	s.line("  read               trigger an immediate reading")
	s.line("  state              dump hal and capability state")
}

func (s *Service) cmdLED(ctx context.Context, args []string) {
	bank, ok := s.firstOfKind(string(types.KindLEDBank))
	if !ok {
		s.line("err no_led_bank")
		return
	}
	if len(args) != 2 {
		s.line("err usage: led <ch> on|off")
		return
	}
	ch, err := strconvx.Atoi(args[0])
	if err != nil || ch < 0 || ch > 0xFF {
		s.line("err bad_channel")
		return
	}
	var on bool
	switch args[1] {
	case "on":
		on = true
	case "off":
		on = false
	default:
		s.line("err usage: led <ch> on|off")
		return
	}
	s.finish(s.control(ctx, bank, "set", types.LEDBankSet{Channel: uint8(ch), On: on}))
}

func (s *Service) cmdMask(ctx context.Context, args []string) {
	bank, ok := s.firstOfKind(string(types.KindLEDBank))
	if !ok {
		s.line("err no_led_bank")
		return
	}
	if len(args) != 1 {
		s.line("err usage: mask <hex>")
		return
	}
	v, err := strconvx.ParseUint(trimHex(args[0]), 16, 16)
	if err != nil {
		s.line("err bad_mask")
		return
	}
	s.finish(s.control(ctx, bank, "set_mask", types.LEDBankMask{Mask: uint16(v)}))
}

func (s *Service) cmdCal(ctx context.Context, args []string) {
	bank, ok := s.firstOfKind(string(types.KindLEDBank))
	if !ok {
		s.line("err no_led_bank")
		return
	}
	if len(args) != 2 {
		s.line("err usage: cal <ch> <hex>")
		return
	}
	ch, err := strconvx.Atoi(args[0])
	if err != nil || ch < 0 || ch > 0xFF {
		s.line("err bad_channel")
		return
	}
	v, err := strconvx.ParseUint(trimHex(args[1]), 16, 8)
	if err != nil {
		s.line("err bad_value")
		return
	}
	s.finish(s.control(ctx, bank, "calibrate", types.LEDBankCalibrate{Channel: uint8(ch), Value: uint8(v)}))
}

// cmdRead pokes every readable capability once; values land on the
// retained tree and show up in state.
func (s *Service) cmdRead(ctx context.Context) {
	n := 0
	for _, ref := range s.caps {
		switch ref.kind {
		case string(types.KindLEDBank), string(types.KindTemperature):
			n++
			if code, ok := s.control(ctx, ref, "read", nil); !ok {
				s.line("err ", ref.name, " ", code)
			} else {
				s.line("ok ", ref.name)
			}
		}
	}
	if n == 0 {
		s.line("err nothing_to_read")
	}
}

func (s *Service) cmdState() {
	level := s.hal
	if level == "" {
		level = "unknown"
	}
	s.line("hal ", level)
	if s.beatOK {
		var tmp [20]byte
		s.line("uptime ", string(conv.Itoa(tmp[:], s.beat.UptimeMs/1000)), "s")
	}
	for _, ref := range s.caps {
		link := s.links[ref]
		if link == "" {
			link = "?"
		}
		s.line("  ", ref.name, " ", ref.kind, " ", link, " ", s.formatValue(ref))
	}
}

func (s *Service) formatValue(ref capRef) string {
	switch v := s.values[ref].(type) {
	case types.LEDBankValue:
		return formatMask(v.Mask)
	case types.TemperatureValue:
		return formatDeciC(v.DeciC) + "C"
	case types.HumidityValue:
		return formatRH(v.RHx100) + "%RH"
	default:
		return "-"
	}
}

// -----------------------------------------------------------------------------
// Bus plumbing
// -----------------------------------------------------------------------------

func (s *Service) control(ctx context.Context, ref capRef, verb string, payload any) (string, bool) {
	topic := bus.T("hal", "cap", ref.domain, ref.kind, ref.name, "control", verb)
	rctx, cancel := context.WithTimeout(ctx, replyAfter)
	defer cancel()
	reply, err := s.conn.RequestWait(rctx, s.conn.NewMessage(topic, payload, false))
	if err != nil {
		return "timeout", false
	}
	switch p := reply.Payload.(type) {
	case types.OKReply:
		if p.OK {
			return "", true
		}
		return "error", false
	case types.ErrorReply:
		return p.Error, false
	default:
		return "bad_reply", false
	}
}

func (s *Service) finish(code string, ok bool) {
	if ok {
		s.line("ok")
		return
	}
	s.line("err ", code)
}

// -----------------------------------------------------------------------------
// Formatting
// -----------------------------------------------------------------------------

func (s *Service) line(parts ...string) {
	out := make([]byte, 0, 48)
	for _, p := range parts {
		out = append(out, p...)
	}
	out = append(out, '\r', '\n')
	_, _ = s.port.Write(out)
}

func trimHex(s string) string {
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return s[2:]
	}
	return s
}

func formatMask(m uint16) string {
	var tmp [4]byte
	return "0x" + string(conv.U16Hex(tmp[:], m))
}

func formatDeciC(v int16) string {
	w := int32(v)
	buf := make([]byte, 0, 8)
	if w < 0 {
		buf = append(buf, '-')
		w = -w
	}
	var tmp [8]byte
	buf = append(buf, conv.Itoa(tmp[:], int64(w/10))...)
	buf = append(buf, '.', byte('0'+w%10))
	return string(buf)
}

func formatRH(v uint16) string {
	var tmp [8]byte
	buf := make([]byte, 0, 8)
	buf = append(buf, conv.Utoa(tmp[:], uint64(v/100))...)
	buf = append(buf, '.', byte('0'+(v%100)/10))
	return string(buf)
}
