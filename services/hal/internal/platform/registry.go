// services/hal/internal/platform/registry.go
package platform

import (
	"sync"

	"ledbank-go/services/hal/internal/core"

	"tinygo.org/x/drivers"
)

var _ core.ResourceRegistry = (*Registry)(nil)

// Registry hands out the board's buses. Claims are exclusive: a bus
// stays owned until the claiming device releases it, and a second
// claim by the same device is a no-op that returns the same handle.
type Registry struct {
	mu       sync.Mutex
	spi      map[core.ResourceID]drivers.SPI
	i2c      map[core.ResourceID]drivers.I2C
	spiOwner map[core.ResourceID]string
	i2cOwner map[core.ResourceID]string
}

func newRegistry(spi map[core.ResourceID]drivers.SPI, i2c map[core.ResourceID]drivers.I2C) *Registry {
	return &Registry{
		spi:      spi,
		i2c:      i2c,
		spiOwner: make(map[core.ResourceID]string),
		i2cOwner: make(map[core.ResourceID]string),
	}
}

func (r *Registry) ClaimSPI(devID string, id core.ResourceID) (drivers.SPI, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bus, ok := r.spi[id]
	if !ok {
		return nil, core.ErrUnknownBus
	}
	if owner, taken := r.spiOwner[id]; taken && owner != devID {
		return nil, core.ErrBusInUse
	}
	r.spiOwner[id] = devID
	return bus, nil
}

func (r *Registry) ReleaseSPI(devID string, id core.ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.spiOwner[id] == devID {
		delete(r.spiOwner, id)
	}
}

func (r *Registry) ClaimI2C(devID string, id core.ResourceID) (drivers.I2C, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bus, ok := r.i2c[id]
	if !ok {
		return nil, core.ErrUnknownBus
	}
	if owner, taken := r.i2cOwner[id]; taken && owner != devID {
		return nil, core.ErrBusInUse
	}
	r.i2cOwner[id] = devID
	return bus, nil
}

func (r *Registry) ReleaseI2C(devID string, id core.ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.i2cOwner[id] == devID {
		delete(r.i2cOwner, id)
	}
}
