// Package bd18378 provides a driver for the ROHM BD18378 12-channel LED
// driver, controlled over full-duplex SPI with two-byte (address, value)
// frames.
//
// The chip pipelines its replies: the bytes clocked in during a transfer
// echo the frame sent one transfer earlier. Init exploits that delayed
// echo to detect a dead or miswired device during the power-up handshake.
//
// The driver performs no allocations after New and keeps no goroutines.
// It owns its SPI handle exclusively; callers needing concurrent access
// must serialize externally.
package bd18378

import (
	"errors"

	"tinygo.org/x/drivers"
)

// ChannelCount is the number of independently switchable LED outputs.
const ChannelCount = 12

// statusResetValue clears the six status bits when written to RegStatusReset.
const statusResetValue = 0b0011_1111

// Errors returned by the driver. SPI transport failures are returned as-is.
var (
	ErrNoEcho         = errors.New("bd18378: handshake echo mismatch")
	ErrNotInitialized = errors.New("bd18378: not initialized")
	ErrInvalidChannel = errors.New("bd18378: channel out of range")
	ErrInvalidAddress = errors.New("bd18378: unknown register address")
)

// initSequence is the power-up handshake, verbatim from the datasheet:
// a software-reset preamble, the reserved B5/B6..B9 selector pairs, the
// reserved 79/7A..7B pairs, and a final software-reset confirm. Order and
// values are a hardware contract; any change is a protocol violation.
var initSequence = [15]struct {
	reg Register
	val uint8
}{
	{RegSoftwareReset, 0xA1},
	{RegSoftwareReset, 0xA1},
	{RegReservedB5, 0x9E},
	{RegReservedB6, 0x00},
	{RegReservedB5, 0x9E},
	{RegReservedB7, 0x00},
	{RegReservedB5, 0x9E},
	{RegReservedB8, 0x00},
	{RegReservedB5, 0x9E},
	{RegReservedB9, 0x00},
	{RegReserved79, 0xD6},
	{RegReserved7A, 0x00},
	{RegReserved79, 0xD6},
	{RegReserved7B, 0x00},
	{RegSoftwareReset, 0xA1},
}

// Device drives one BD18378.
type Device struct {
	bus         drivers.SPI
	initialized bool
	enabled     [ChannelCount]bool
	w, r        [2]byte // reused transfer buffers
}

// New binds a controller to an SPI bus. No transactions are performed;
// the device starts uninitialized with all channels disabled. The bus
// must already be configured.
func New(bus drivers.SPI) *Device {
	return &Device{bus: bus}
}

// transfer is the single point of bus contact: it clocks out
// [address, value] and returns the two bytes clocked in, which echo the
// previous frame. Transport errors pass through unchanged.
func (d *Device) transfer(reg Register, val uint8) ([2]byte, error) {
	d.w[0] = uint8(reg)
	d.w[1] = val
	if err := d.bus.Tx(d.w[:], d.r[:]); err != nil {
		return [2]byte{}, err
	}
	return d.r, nil
}

// Init drives the power-up handshake and finishes with a status reset.
// Each handshake reply is validated against the frame sent one transfer
// earlier; the first reply follows nothing and is not checked, and the
// status-reset reply is not checked. On any transport error or echo
// mismatch the device stays uninitialized and the whole handshake must
// be retried from the start; partial progress is not resumable.
func (d *Device) Init() error {
	for i, step := range initSequence {
		echo, err := d.transfer(step.reg, step.val)
		if err != nil {
			return err
		}
		if i == 0 {
			continue
		}
		prev := initSequence[i-1]
		if echo[0] != uint8(prev.reg) || echo[1] != prev.val {
			return ErrNoEcho
		}
	}
	if _, err := d.transfer(RegStatusReset, statusResetValue); err != nil {
		return err
	}
	d.initialized = true
	return nil
}

// IsInitialized reports whether a full Init has succeeded. It is a
// logical flag: an external hardware reset does not clear it.
func (d *Device) IsInitialized() bool { return d.initialized }

// EnableChannel marks channel ch enabled in memory. Hardware is not
// touched until UpdateAllChannels. Enabling an enabled channel is a no-op.
func (d *Device) EnableChannel(ch uint8) error { return d.setChannel(ch, true) }

// DisableChannel marks channel ch disabled in memory.
func (d *Device) DisableChannel(ch uint8) error { return d.setChannel(ch, false) }

// The channel index is validated before the initialization gate, so an
// out-of-range index reports ErrInvalidChannel even before Init.
func (d *Device) setChannel(ch uint8, on bool) error {
	if ch >= ChannelCount {
		return ErrInvalidChannel
	}
	if !d.initialized {
		return ErrNotInitialized
	}
	d.enabled[ch] = on
	return nil
}

// EnabledMask returns the in-memory enable state, bit k = channel k.
// It reflects EnableChannel/DisableChannel calls, not what has been
// flushed to hardware.
func (d *Device) EnabledMask() uint16 {
	var m uint16
	for ch := 0; ch < ChannelCount; ch++ {
		if d.enabled[ch] {
			m |= 1 << ch
		}
	}
	return m
}

// UpdateAllChannels flushes the in-memory enable state to the two
// channel-group registers, low group first. Bit k of the low group is
// channel k; bit k of the high group is channel k+6. The replies are not
// validated, and the second write is not attempted if the first fails.
func (d *Device) UpdateAllChannels() error {
	if !d.initialized {
		return ErrNotInitialized
	}
	var lo, hi uint8
	for ch := 0; ch < 6; ch++ {
		if d.enabled[ch] {
			lo |= 1 << ch
		}
		if d.enabled[ch+6] {
			hi |= 1 << ch
		}
	}
	if _, err := d.transfer(RegChannelEnable00To05, lo); err != nil {
		return err
	}
	_, err := d.transfer(RegChannelEnable06To11, hi)
	return err
}

// SetChannelCalibration writes one channel's calibration byte. The write
// takes effect immediately; no read-back is performed.
func (d *Device) SetChannelCalibration(ch uint8, value uint8) error {
	if ch >= ChannelCount {
		return ErrInvalidChannel
	}
	if !d.initialized {
		return ErrNotInitialized
	}
	_, err := d.transfer(calibrationRegister(ch), value)
	return err
}
