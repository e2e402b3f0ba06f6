package layer

import "gonum.org/v1/gonum/mat"

// Parameter is a named rows x cols view into the flat parameter and
// gradient vectors of a network. Meta parameters have shapes but no storage.
type Parameter struct {
	Name string
	Rows int
	Cols int
	Data []float64
	Grad []float64
}

// Len returns the number of elements.
func (p *Parameter) Len() int {
	return p.Rows * p.Cols
}

// Meta reports whether the parameter has no storage.
func (p *Parameter) Meta() bool {
	return p.Data == nil
}

// Value returns the parameter as a matrix sharing its storage.
func (p *Parameter) Value() *mat.Dense {
	return mat.NewDense(p.Rows, p.Cols, p.Data)
}

// Gradient returns the gradient as a matrix sharing its storage.
func (p *Parameter) Gradient() *mat.Dense {
	return mat.NewDense(p.Rows, p.Cols, p.Grad)
}

// Arena hands out parameters backed by two contiguous vectors, so that
// optimizers and collectives can treat the whole network as one slice.
type Arena struct {
	Data []float64
	Grad []float64
	off  int
	meta bool
}

// NewArena creates an arena of n elements.
func NewArena(n int) *Arena {
	return &Arena{Data: make([]float64, n), Grad: make([]float64, n)}
}

// NewMetaArena creates an arena that only records shapes.
func NewMetaArena() *Arena {
	return &Arena{meta: true}
}

// Alloc carves the next rows x cols parameter out of the arena.
func (a *Arena) Alloc(name string, rows, cols int) *Parameter {
	p := &Parameter{Name: name, Rows: rows, Cols: cols}
	n := rows * cols
	if !a.meta {
		if a.off+n > len(a.Data) {
			panic("layer: arena exhausted allocating " + name)
		}
		p.Data = a.Data[a.off : a.off+n : a.off+n]
		p.Grad = a.Grad[a.off : a.off+n : a.off+n]
	}
	a.off += n
	return p
}

// Used returns the number of allocated elements.
func (a *Arena) Used() int {
	return a.off
}

// ZeroGrad clears all gradients.
func (a *Arena) ZeroGrad() {
	Fill(a.Grad, 0)
}
