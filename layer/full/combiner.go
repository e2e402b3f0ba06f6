package full

import "fmt"

import "gonum.org/v1/gonum/mat"

func errInvalid(in, out int) error {
	return fmt.Errorf("full: invalid size %dx%d", in, out)
}

// Forward returns x W + b for the rows of x.
func (f *FullLayer) Forward(x *mat.Dense) *mat.Dense {
	rows, _ := x.Dims()
	y := mat.NewDense(rows, f.out, nil)
	y.Mul(x, f.weight.Value())
	b := f.bias.Data
	for i := 0; i < rows; i++ {
		row := y.RawRowView(i)
		for j := range row {
			row[j] += b[j]
		}
	}
	return y
}

// Backward accumulates the weight and bias gradients for the forward input x
// and upstream gradient dy, and returns the gradient with respect to x.
func (f *FullLayer) Backward(x, dy *mat.Dense) *mat.Dense {
	rows, _ := dy.Dims()

	var dw mat.Dense
	dw.Mul(x.T(), dy)
	gw := f.weight.Gradient()
	gw.Add(gw, &dw)

	gb := f.bias.Grad
	for i := 0; i < rows; i++ {
		for j, v := range dy.RawRowView(i) {
			gb[j] += v
		}
	}

	dx := mat.NewDense(rows, f.in, nil)
	dx.Mul(dy, f.weight.Value().T())
	return dx
}

// Flops returns the multiply-add count of Forward and Backward on rows inputs.
func (f *FullLayer) Flops(rows int) (forward, backward float64) {
	mm := 2 * float64(rows) * float64(f.in) * float64(f.out)
	return mm + float64(rows*f.out), 2*mm + float64(rows*f.out)
}
