// services/hal/internal/platform/host.go
//go:build !rp2040 && !rp2350

package platform

import (
	"sync"

	"ledbank-go/services/hal/internal/core"

	"tinygo.org/x/drivers"
)

// NewRegistry builds the host-side registry: emulated buses only, so
// the full stack runs in tests and on a dev machine.
func NewRegistry() *Registry {
	return newRegistry(
		map[core.ResourceID]drivers.SPI{"spi0": NewHostSPI()},
		map[core.ResourceID]drivers.I2C{"i2c0": NewHostI2C()},
	)
}

// ----------------------------- SPI (host) ------------------------------------

var _ drivers.SPI = (*HostSPI)(nil)

// HostSPI emulates the LED driver's full-duplex wiring: each transfer
// clocks out the bytes of the previous frame, so handshakes that expect
// the one-frame-delayed echo succeed against it.
type HostSPI struct {
	mu   sync.Mutex
	prev []byte
}

func NewHostSPI() *HostSPI { return &HostSPI{} }

func (h *HostSPI) Tx(w, r []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range r {
		if i < len(h.prev) {
			r[i] = h.prev[i]
		} else {
			r[i] = 0
		}
	}
	h.prev = append(h.prev[:0], w...)
	return nil
}

func (h *HostSPI) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := h.Tx([]byte{b}, r[:])
	return r[0], err
}

// ----------------------------- I²C (host) ------------------------------------

var _ drivers.I2C = (*HostI2C)(nil)

// HostI2C emulates just enough of a Sensirion humidity sensor: commands
// are accepted and swallowed, and every 6-byte read returns a fixed
// measurement frame (about 25.0 C / 50.0 %RH) with valid CRCs.
type HostI2C struct {
	mu    sync.Mutex
	lastW []byte
}

func NewHostI2C() *HostI2C { return &HostI2C{} }

func (h *HostI2C) Tx(addr uint16, w, r []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(w) > 0 {
		h.lastW = append(h.lastW[:0], w...)
	}
	for i := range r {
		r[i] = 0
	}
	if len(r) >= 6 {
		f := measurementFrame(26214, 32768)
		copy(r, f[:])
	}
	return nil
}

// measurementFrame lays out raw temperature then raw humidity, each
// followed by its CRC, matching the sensor's temperature-first mode.
func measurementFrame(rawT, rawRH uint16) [6]byte {
	var f [6]byte
	f[0], f[1] = byte(rawT>>8), byte(rawT)
	f[2] = sensirionCRC(f[0:2])
	f[3], f[4] = byte(rawRH>>8), byte(rawRH)
	f[5] = sensirionCRC(f[3:5])
	return f
}

// sensirionCRC is CRC-8, polynomial 0x31, init 0xFF, MSB first.
func sensirionCRC(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
