// Package layer defines the trainable layer kinds and their weight initialization.
package layer

import "math/rand/v2"

// Kind tags a layer with the initialization rule it follows.
type Kind byte

const (
	// Other layers carry their own rule, see Initializer.
	Other Kind = iota

	// Linear layers draw the weight, their first parameter, from N(0, 0.02)
	// and zero the remaining ones.
	Linear

	// Embedding layers draw every parameter from N(0, 0.02).
	Embedding
)

// InitStd is the standard deviation of the normal weight initialization.
const InitStd = 0.02

func (k Kind) String() string {
	switch k {
	case Linear:
		return "linear"
	case Embedding:
		return "embedding"
	}
	return "other"
}

// Layer is a trainable layer.
type Layer interface {

	// Kind reports the initialization rule of the layer.
	Kind() Kind

	// Parameters returns the parameter tensors of the layer.
	Parameters() []*Parameter
}

// Initializer is implemented by Other layers with their own rule.
type Initializer interface {
	Init(rng *rand.Rand)
}

// InitAll initializes every layer in one traversal, in order, applying the
// rule of its Kind. Other layers that are not an Initializer are left as is.
func InitAll(layers []Layer, rng *rand.Rand) {
	for _, l := range layers {
		params := l.Parameters()
		switch l.Kind() {
		case Linear:
			if len(params) == 0 {
				continue
			}
			Normal(params[0].Data, InitStd, rng)
			for _, p := range params[1:] {
				Fill(p.Data, 0)
			}
		case Embedding:
			for _, p := range params {
				Normal(p.Data, InitStd, rng)
			}
		default:
			if in, ok := l.(Initializer); ok {
				in.Init(rng)
			}
		}
	}
}

// Normal fills data with samples of N(0, std).
func Normal(data []float64, std float64, rng *rand.Rand) {
	for i := range data {
		data[i] = rng.NormFloat64() * std
	}
}

// Fill sets every element of data to v.
func Fill(data []float64, v float64) {
	for i := range data {
		data[i] = v
	}
}
