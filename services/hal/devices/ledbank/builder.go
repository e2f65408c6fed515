// services/hal/devices/ledbank/builder.go
package ledbank

import (
	"context"

	"ledbank-go/drivers/bd18378"
	"ledbank-go/errcode"
	"ledbank-go/services/hal/internal/core"
)

func init() { core.RegisterBuilder("bd18378", builder{}) }

// Params configures one LED bank. Calibration entries apply to channels
// 0..n-1 in order; InitialMask selects the channels lit after init.
type Params struct {
	Bus         string  `json:"bus"`
	Calibration []uint8 `json:"calibration,omitempty"`
	InitialMask uint16  `json:"initial_mask,omitempty"`
}

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, ok := parseParams(in.Params)
	if !ok || p.Bus == "" {
		return nil, errcode.InvalidParams
	}
	spi, err := in.Res.Reg.ClaimSPI(in.ID, core.ResourceID(p.Bus))
	if err != nil {
		return nil, err
	}
	return &Device{
		id:     in.ID,
		bus:    p.Bus,
		drv:    bd18378.New(spi),
		pub:    in.Res.Pub,
		reg:    in.Res.Reg,
		params: p,
	}, nil
}

// parseParams accepts the typed struct (host wiring, tests) or the
// map form a JSON config decodes to.
func parseParams(v any) (Params, bool) {
	switch p := v.(type) {
	case Params:
		return p, true
	case map[string]any:
		var out Params
		out.Bus, _ = p["bus"].(string)
		if n, ok := numField(p, "initial_mask"); ok {
			if n < 0 || n > 0xFFFF {
				return out, false
			}
			out.InitialMask = uint16(n)
		}
		if raw, ok := p["calibration"].([]any); ok {
			out.Calibration = make([]uint8, 0, len(raw))
			for _, e := range raw {
				n, ok := toNum(e)
				if !ok || n < 0 || n > 0xFF {
					return out, false
				}
				out.Calibration = append(out.Calibration, uint8(n))
			}
		}
		return out, true
	default:
		return Params{}, false
	}
}

func numField(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return toNum(v)
}

func toNum(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}
