package compute

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParams_Validate(t *testing.T) {
	valid := DefaultParams()
	assert.NoError(t, valid.Validate())

	cases := map[string]func(p *Params){
		"zero width":       func(p *Params) { p.Width = 0 },
		"negative height":  func(p *Params) { p.Height = -5 },
		"zero tile":        func(p *Params) { p.TileWidth = 0 },
		"zero max_iter":    func(p *Params) { p.MaxIter = 0 },
		"max_iter too big": func(p *Params) { p.MaxIter = MaxIterLimit + 1 },
		"negative budget":  func(p *Params) { p.TimeLimitMs = -1 },
		"negative workers": func(p *Params) { p.NumWorkers = -1 },
		"unknown mode":     func(p *Params) { p.Mode = "parallel" },
		"too many tiles":   func(p *Params) { p.Width, p.Height, p.TileWidth, p.TileHeight = 4096, 4096, 1, 1 },
		// 2^33 × 2^31 相乘会回绕为 0
		"overflowing size":   func(p *Params) { p.Width, p.Height, p.TileWidth, p.TileHeight = 1<<33, 1<<31, 1<<33, 1<<11 },
		"width too big":      func(p *Params) { p.Width = MaxDimension + 1 },
		"tile too big":       func(p *Params) { p.TileHeight = MaxDimension + 1 },
		"too many pixels":    func(p *Params) { p.Width, p.Height = MaxDimension, MaxDimension },
		"budget overflows":   func(p *Params) { p.TimeLimitMs = 1 << 62 },
		"budget above limit": func(p *Params) { p.TimeLimitMs = MaxTimeLimitMs + 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := DefaultParams()
			mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
		})
	}
}

func TestParams_LimitsAreInclusive(t *testing.T) {
	p := DefaultParams()
	p.Width, p.Height = MaxDimension, MaxPixels/MaxDimension
	p.TileWidth, p.TileHeight = MaxDimension, MaxDimension
	p.TimeLimitMs = MaxTimeLimitMs
	assert.NoError(t, p.Validate())
	assert.Positive(t, p.TimeLimit())
}

func TestParams_ZeroBudgetIsValid(t *testing.T) {
	p := DefaultParams()
	p.TimeLimitMs = 0
	assert.NoError(t, p.Validate())
}
