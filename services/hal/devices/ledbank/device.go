// services/hal/devices/ledbank/device.go
package ledbank

import (
	"context"
	"errors"

	"ledbank-go/drivers/bd18378"
	"ledbank-go/errcode"
	"ledbank-go/services/hal/internal/core"
	"ledbank-go/types"
	"ledbank-go/x/timex"
)

var _ core.Device = (*Device)(nil)

// Device exposes one BD18378 as a led_bank capability. The driver keeps
// the desired channel states; every mutation pushes both enable groups
// to the chip and republishes the bank mask.
type Device struct {
	id  string
	bus string

	drv *bd18378.Device
	pub core.EventEmitter
	reg core.ResourceRegistry

	params Params
	addr   core.CapAddr
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	return []core.CapabilitySpec{{
		Domain: "light",
		Kind:   types.KindLEDBank,
		Name:   d.id,
		Info: types.Info{
			SchemaVersion: 1,
			Driver:        "bd18378",
			Detail:        types.LEDBankInfo{Bus: d.bus, Channels: bd18378.ChannelCount},
		},
	}}
}

// Init runs the chip's handshake, applies any configured calibration
// and drives the initial mask before the capability goes public.
func (d *Device) Init(ctx context.Context) error {
	d.addr = core.CapAddr{Domain: "light", Kind: string(types.KindLEDBank), Name: d.id}

	if err := d.drv.Init(); err != nil {
		return d.wrap("init", err)
	}
	for ch, val := range d.params.Calibration {
		if ch >= bd18378.ChannelCount {
			break
		}
		if err := d.drv.SetChannelCalibration(uint8(ch), val); err != nil {
			return d.wrap("init", err)
		}
	}
	if err := d.applyMask(d.params.InitialMask); err != nil {
		return d.wrap("init", err)
	}
	d.emitMask()
	return nil
}

func (d *Device) Control(_ core.CapAddr, verb string, payload any) (core.Result, error) {
	switch verb {
	case "set":
		p, code := setParams(payload)
		if code != "" {
			return core.Result{OK: false, Error: code}, nil
		}
		var err error
		if p.On {
			err = d.drv.EnableChannel(p.Channel)
		} else {
			err = d.drv.DisableChannel(p.Channel)
		}
		if err == nil {
			err = d.drv.UpdateAllChannels()
		}
		if err != nil {
			return core.Result{}, d.fail("set", err)
		}
		d.emitMask()
		return core.Result{OK: true}, nil

	case "set_mask":
		p, code := maskParams(payload)
		if code != "" {
			return core.Result{OK: false, Error: code}, nil
		}
		if err := d.applyMask(p.Mask); err != nil {
			return core.Result{}, d.fail("set_mask", err)
		}
		d.emitMask()
		return core.Result{OK: true}, nil

	case "calibrate":
		p, code := calibrateParams(payload)
		if code != "" {
			return core.Result{OK: false, Error: code}, nil
		}
		if err := d.drv.SetChannelCalibration(p.Channel, p.Value); err != nil {
			return core.Result{}, d.fail("calibrate", err)
		}
		return core.Result{OK: true}, nil

	case "read":
		d.emitMask()
		return core.Result{OK: true}, nil

	default:
		return core.Result{OK: false, Error: errcode.Unsupported}, nil
	}
}

func (d *Device) Close() error {
	if d.reg != nil {
		d.reg.ReleaseSPI(d.id, core.ResourceID(d.bus))
	}
	return nil
}

// applyMask reconciles every channel's desired state, then pushes both
// enable groups in one update.
func (d *Device) applyMask(mask uint16) error {
	for ch := uint8(0); ch < bd18378.ChannelCount; ch++ {
		var err error
		if mask&(1<<ch) != 0 {
			err = d.drv.EnableChannel(ch)
		} else {
			err = d.drv.DisableChannel(ch)
		}
		if err != nil {
			return err
		}
	}
	return d.drv.UpdateAllChannels()
}

func (d *Device) emitMask() {
	d.pub.Emit(core.Event{
		Addr:    d.addr,
		Payload: types.LEDBankValue{Mask: d.drv.EnabledMask()},
		TSms:    timex.NowMs(),
	})
}

func (d *Device) wrap(op string, err error) error {
	return &errcode.E{C: codeFor(err), Op: "led_bank." + op, Err: err}
}

// fail wraps err and, for bus-level faults, degrades the capability so
// dashboards see the broken link even when nobody reads the reply.
func (d *Device) fail(op string, err error) error {
	code := codeFor(err)
	if code == errcode.BusFault || code == errcode.NoEcho {
		d.pub.Emit(core.Event{Addr: d.addr, Err: string(code), TSms: timex.NowMs()})
	}
	return &errcode.E{C: code, Op: "led_bank." + op, Err: err}
}

func codeFor(err error) errcode.Code {
	switch {
	case errors.Is(err, bd18378.ErrInvalidChannel):
		return errcode.InvalidChannel
	case errors.Is(err, bd18378.ErrNotInitialized):
		return errcode.NotInitialized
	case errors.Is(err, bd18378.ErrNoEcho):
		return errcode.NoEcho
	default:
		return errcode.BusFault
	}
}

// ---- payload parsing (typed or JSON map) ----

func setParams(v any) (types.LEDBankSet, errcode.Code) {
	switch p := v.(type) {
	case types.LEDBankSet:
		return p, ""
	case map[string]any:
		ch, ok := numField(p, "channel")
		on, ok2 := p["on"].(bool)
		if !ok || !ok2 || ch < 0 || ch > 0xFF {
			return types.LEDBankSet{}, errcode.InvalidPayload
		}
		return types.LEDBankSet{Channel: uint8(ch), On: on}, ""
	default:
		return types.LEDBankSet{}, errcode.InvalidPayload
	}
}

func maskParams(v any) (types.LEDBankMask, errcode.Code) {
	var out types.LEDBankMask
	switch p := v.(type) {
	case types.LEDBankMask:
		out = p
	case map[string]any:
		n, ok := numField(p, "mask")
		if !ok || n < 0 || n > 0xFFFF {
			return out, errcode.InvalidPayload
		}
		out.Mask = uint16(n)
	default:
		return out, errcode.InvalidPayload
	}
	if out.Mask>>bd18378.ChannelCount != 0 {
		return out, errcode.InvalidParams
	}
	return out, ""
}

func calibrateParams(v any) (types.LEDBankCalibrate, errcode.Code) {
	switch p := v.(type) {
	case types.LEDBankCalibrate:
		return p, ""
	case map[string]any:
		ch, ok := numField(p, "channel")
		val, ok2 := numField(p, "value")
		if !ok || !ok2 || ch < 0 || ch > 0xFF || val < 0 || val > 0xFF {
			return types.LEDBankCalibrate{}, errcode.InvalidPayload
		}
		return types.LEDBankCalibrate{Channel: uint8(ch), Value: uint8(val)}, ""
	default:
		return types.LEDBankCalibrate{}, errcode.InvalidPayload
	}
}
