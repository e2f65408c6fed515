// services/hal/devices/thermal/builder.go
package thermal

import (
	"context"

	"ledbank-go/errcode"
	"ledbank-go/services/hal/internal/core"

	"tinygo.org/x/drivers/shtc3"
)

func init() { core.RegisterBuilder("shtc3", builder{}) }

type Params struct {
	Bus string `json:"bus"` // e.g. "i2c0"
}

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, ok := parseParams(in.Params)
	if !ok || p.Bus == "" {
		return nil, errcode.InvalidParams
	}
	i2c, err := in.Res.Reg.ClaimI2C(in.ID, core.ResourceID(p.Bus))
	if err != nil {
		return nil, err
	}
	drv := shtc3.New(i2c)
	return &Device{
		id:  in.ID,
		bus: p.Bus,
		sen: &drv,
		pub: in.Res.Pub,
		reg: in.Res.Reg,
	}, nil
}

func parseParams(v any) (Params, bool) {
	switch p := v.(type) {
	case Params:
		return p, true
	case map[string]any:
		var out Params
		out.Bus, _ = p["bus"].(string)
		return out, true
	default:
		return Params{}, false
	}
}
