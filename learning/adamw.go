package learning

import "math"

import "gonum.org/v1/gonum/floats"

// ParamGroup is a contiguous range [Lo, Hi) of the flat parameter vector
// sharing a learning rate and a weight decay.
type ParamGroup struct {
	Lo, Hi      int
	LR          float64
	WeightDecay float64
}

// AdamWState is the persisted optimizer state. M and V always have the full
// parameter length; a worker only keeps its own shard of them up to date.
type AdamWState struct {
	Step   int
	M      []float64
	V      []float64
	Groups []ParamGroup
}

// AdamW is the decoupled weight decay Adam optimizer.
type AdamW struct {
	beta1, beta2, eps float64
	state             AdamWState
}

// NewAdamW creates an optimizer over n parameters in a single group.
func NewAdamW(h *HyperParameters, n int) *AdamW {
	return &AdamW{
		beta1: h.Beta1,
		beta2: h.Beta2,
		eps:   1e-8,
		state: AdamWState{
			M:      make([]float64, n),
			V:      make([]float64, n),
			Groups: []ParamGroup{{Lo: 0, Hi: n, LR: h.LearningRate, WeightDecay: h.WeightDecay}},
		},
	}
}

// SetLR sets the learning rate of every parameter group.
func (o *AdamW) SetLR(lr float64) {
	for i := range o.state.Groups {
		o.state.Groups[i].LR = lr
	}
}

// Step applies one update to params[lo:hi] using grads[lo:hi]. Workers call
// it with their own shard; the step counter advances once per call.
func (o *AdamW) Step(params, grads []float64, lo, hi int) {
	o.state.Step++
	t := float64(o.state.Step)
	bc1 := 1 - math.Pow(o.beta1, t)
	bc2 := 1 - math.Pow(o.beta2, t)
	m, v := o.state.M, o.state.V

	for _, g := range o.state.Groups {
		from, to := max(g.Lo, lo), min(g.Hi, hi)
		stepSize := g.LR / bc1
		decay := 1 - g.LR*g.WeightDecay
		for i := from; i < to; i++ {
			params[i] *= decay
			m[i] = o.beta1*m[i] + (1-o.beta1)*grads[i]
			v[i] = o.beta2*v[i] + (1-o.beta2)*grads[i]*grads[i]
			denom := math.Sqrt(v[i])/math.Sqrt(bc2) + o.eps
			params[i] -= stepSize * m[i] / denom
		}
	}
}

// State returns the optimizer state. The slices are shared, not copied.
func (o *AdamW) State() *AdamWState {
	return &o.state
}

// Restore replaces the optimizer state with s.
func (o *AdamW) Restore(s AdamWState) {
	o.state = s
}

// ClipGradNorm scales grads so that their global L2 norm is at most maxNorm
// and returns the norm before clipping.
func ClipGradNorm(grads []float64, maxNorm float64) float64 {
	total := floats.Norm(grads, 2)
	if maxNorm <= 0 {
		return total
	}
	coef := maxNorm / (total + 1e-6)
	if coef < 1 {
		floats.Scale(coef, grads)
	}
	return total
}
