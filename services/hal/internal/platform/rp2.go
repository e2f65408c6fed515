// services/hal/internal/platform/rp2.go
//go:build rp2040 || rp2350

package platform

import (
	"machine"

	"ledbank-go/services/hal/internal/core"

	"tinygo.org/x/drivers"
)

// NewRegistry configures the Pico's physical buses on board-default
// pins: SPI0 for the LED driver chain, I2C0 for the environment sensor.
func NewRegistry() *Registry {
	spi0 := machine.SPI0
	_ = spi0.Configure(machine.SPIConfig{
		Frequency: 1 * machine.MHz,
		SCK:       machine.SPI0_SCK_PIN,
		SDO:       machine.SPI0_SDO_PIN,
		SDI:       machine.SPI0_SDI_PIN,
	})

	i2c0 := machine.I2C0
	_ = i2c0.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	})

	return newRegistry(
		map[core.ResourceID]drivers.SPI{"spi0": spi0},
		map[core.ResourceID]drivers.I2C{"i2c0": i2c0},
	)
}
