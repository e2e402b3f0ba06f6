package gain

import "fmt"

import "gonum.org/v1/gonum/mat"

func errInvalid(dim int) error {
	return fmt.Errorf("gain: invalid size %d", dim)
}

// Forward scales the columns of x.
func (g *GainLayer) Forward(x *mat.Dense) *mat.Dense {
	rows, _ := x.Dims()
	y := mat.NewDense(rows, g.dim, nil)
	for i := 0; i < rows; i++ {
		out := y.RawRowView(i)
		for j, v := range x.RawRowView(i) {
			out[j] = v * g.gain.Data[j]
		}
	}
	return y
}

// Backward accumulates the gain gradient and returns dx.
func (g *GainLayer) Backward(x, dy *mat.Dense) *mat.Dense {
	rows, _ := dy.Dims()
	dx := mat.NewDense(rows, g.dim, nil)
	for i := 0; i < rows; i++ {
		xr, dr, out := x.RawRowView(i), dy.RawRowView(i), dx.RawRowView(i)
		for j, d := range dr {
			g.gain.Grad[j] += xr[j] * d
			out[j] = d * g.gain.Data[j]
		}
	}
	return dx
}
