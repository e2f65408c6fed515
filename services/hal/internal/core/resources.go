package core

import (
	"ledbank-go/errcode"

	"tinygo.org/x/drivers"
)

// ResourceID names a physical bus, e.g. "spi0", "i2c0".
type ResourceID string

// ResourceRegistry hands exclusive bus handles to devices. Claims are
// per device ID; a second claim on an owned bus fails with BusInUse.
//
// The handles are plain tinygo driver interfaces. Serialisation comes
// from structure, not locks: every device operation runs on the HAL
// goroutine, so a claimed bus has exactly one user at a time.
type ResourceRegistry interface {
	ClaimSPI(devID string, id ResourceID) (drivers.SPI, error)
	ReleaseSPI(devID string, id ResourceID)

	ClaimI2C(devID string, id ResourceID) (drivers.I2C, error)
	ReleaseI2C(devID string, id ResourceID)
}

// Registry error codes; errcode.Code implements error.
var (
	ErrUnknownBus = errcode.UnknownBus
	ErrBusInUse   = errcode.BusInUse
)
