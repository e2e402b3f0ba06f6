// Package full implements a fully connected (linear) layer with a bias
package full

import "github.com/neurlang/pretrain/layer"

// FullLayer computes y = x W + b for row vectors x.
type FullLayer struct {
	name   string
	in     int
	out    int
	weight *layer.Parameter
	bias   *layer.Parameter
}

// New creates a new fully connected layer in the arena
func New(a *layer.Arena, name string, in, out int) (o *FullLayer, err error) {
	if in <= 0 || out <= 0 {
		return nil, errInvalid(in, out)
	}
	o = new(FullLayer)
	o.name = name
	o.in = in
	o.out = out
	o.weight = a.Alloc(name+".weight", in, out)
	o.bias = a.Alloc(name+".bias", 1, out)
	return
}

// Kind reports layer.Linear
func (f *FullLayer) Kind() layer.Kind {
	return layer.Linear
}

// Parameters returns the weight and the bias, in that order
func (f *FullLayer) Parameters() []*layer.Parameter {
	return []*layer.Parameter{f.weight, f.bias}
}
