// Package gain implements an elementwise learned scale
package gain

import "math/rand/v2"

import "github.com/neurlang/pretrain/layer"

// GainLayer multiplies every column of its input by a learned gain.
type GainLayer struct {
	dim  int
	gain *layer.Parameter
}

// New creates a new gain layer in the arena
func New(a *layer.Arena, name string, dim int) (o *GainLayer, err error) {
	if dim <= 0 {
		return nil, errInvalid(dim)
	}
	o = new(GainLayer)
	o.dim = dim
	o.gain = a.Alloc(name+".gain", 1, dim)
	return
}

// Kind reports layer.Other
func (g *GainLayer) Kind() layer.Kind {
	return layer.Other
}

// Parameters returns the gain vector
func (g *GainLayer) Parameters() []*layer.Parameter {
	return []*layer.Parameter{g.gain}
}

// Init sets the gain to ones
func (g *GainLayer) Init(rng *rand.Rand) {
	layer.Fill(g.gain.Data, 1)
}
