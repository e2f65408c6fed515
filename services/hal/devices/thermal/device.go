// services/hal/devices/thermal/device.go
package thermal

import (
	"context"

	"ledbank-go/errcode"
	"ledbank-go/services/hal/internal/core"
	"ledbank-go/types"
	"ledbank-go/x/mathx"
	"ledbank-go/x/timex"
)

const sensorAddr = 0x70

var _ core.Device = (*Device)(nil)

// sensor is the slice of the shtc3 driver this device uses. Readings
// come back as milli-degrees C and milli-percent RH.
type sensor interface {
	WakeUp() error
	Sleep() error
	ReadTemperatureHumidity() (int32, int32, error)
}

// Device exposes one SHTC3 as temperature and humidity capabilities.
type Device struct {
	id  string
	bus string

	sen sensor
	pub core.EventEmitter
	reg core.ResourceRegistry

	addrTemp core.CapAddr
	addrHum  core.CapAddr
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	return []core.CapabilitySpec{
		{
			Domain: "env",
			Kind:   types.KindTemperature,
			Name:   d.id,
			Info: types.Info{
				SchemaVersion: 1, Driver: "shtc3",
				Detail: types.TemperatureInfo{Sensor: "shtc3", Addr: sensorAddr, Bus: d.bus},
			},
		},
		{
			Domain: "env",
			Kind:   types.KindHumidity,
			Name:   d.id,
			Info: types.Info{
				SchemaVersion: 1, Driver: "shtc3",
				Detail: types.HumidityInfo{Sensor: "shtc3", Addr: sensorAddr, Bus: d.bus},
			},
		},
	}
}

// Init sets up addresses without touching the bus; the sensor is first
// contacted on read.
func (d *Device) Init(ctx context.Context) error {
	d.addrTemp = core.CapAddr{Domain: "env", Kind: string(types.KindTemperature), Name: d.id}
	d.addrHum = core.CapAddr{Domain: "env", Kind: string(types.KindHumidity), Name: d.id}
	return nil
}

func (d *Device) Control(_ core.CapAddr, verb string, payload any) (core.Result, error) {
	switch verb {
	case "read":
		if err := d.read(); err != nil {
			return core.Result{}, err
		}
		return core.Result{OK: true}, nil
	default:
		return core.Result{OK: false, Error: errcode.Unsupported}, nil
	}
}

// read wakes the sensor, measures, and always puts it back to sleep.
func (d *Device) read() error {
	if err := d.sen.WakeUp(); err != nil {
		return d.fail("wake", err)
	}
	defer func() { _ = d.sen.Sleep() }()

	tmc, rhm, err := d.sen.ReadTemperatureHumidity()
	if err != nil {
		return d.fail("measure", err)
	}

	// milli-C -> deci-C, milli-%RH -> %RH x100, both clamped to the
	// published wire types.
	deciC := mathx.Clamp(mathx.RoundDivS(tmc, 100), -32768, 32767)
	rhx100 := mathx.Clamp(mathx.RoundDivS(rhm, 10), 0, 10000)

	ts := timex.NowMs()
	d.pub.Emit(core.Event{
		Addr:    d.addrTemp,
		Payload: types.TemperatureValue{DeciC: int16(deciC)},
		TSms:    ts,
	})
	d.pub.Emit(core.Event{
		Addr:    d.addrHum,
		Payload: types.HumidityValue{RHx100: uint16(rhx100)},
		TSms:    ts,
	})
	return nil
}

// fail degrades both capabilities; one sensor serves them both, so a
// broken measurement is a broken pair.
func (d *Device) fail(op string, err error) error {
	ts := timex.NowMs()
	d.pub.Emit(core.Event{Addr: d.addrTemp, Err: string(errcode.BusFault), TSms: ts})
	d.pub.Emit(core.Event{Addr: d.addrHum, Err: string(errcode.BusFault), TSms: ts})
	return &errcode.E{C: errcode.BusFault, Op: "thermal." + op, Err: err}
}

func (d *Device) Close() error {
	if d.reg != nil {
		d.reg.ReleaseI2C(d.id, core.ResourceID(d.bus))
	}
	return nil
}
