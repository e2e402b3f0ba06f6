package embedding

import "fmt"

import "gonum.org/v1/gonum/mat"

func errInvalid(vocab, dim int) error {
	return fmt.Errorf("embedding: invalid size %dx%d", vocab, dim)
}

// Forward gathers one table row per id.
func (e *EmbeddingLayer) Forward(ids []int) (*mat.Dense, error) {
	y := mat.NewDense(len(ids), e.dim, nil)
	for i, id := range ids {
		if id < 0 || id >= e.vocab {
			return nil, fmt.Errorf("embedding: token %d out of vocabulary of %d", id, e.vocab)
		}
		copy(y.RawRowView(i), e.table.Data[id*e.dim:(id+1)*e.dim])
	}
	return y, nil
}

// Backward scatters the rows of dy into the table gradient.
func (e *EmbeddingLayer) Backward(ids []int, dy *mat.Dense) {
	for i, id := range ids {
		g := e.table.Grad[id*e.dim : (id+1)*e.dim]
		for j, v := range dy.RawRowView(i) {
			g[j] += v
		}
	}
}
