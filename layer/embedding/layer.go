// Package embedding implements a token embedding table
package embedding

import "github.com/neurlang/pretrain/layer"

// EmbeddingLayer maps token ids to rows of a vocab x dim table.
type EmbeddingLayer struct {
	vocab int
	dim   int
	table *layer.Parameter
}

// New creates a new embedding layer in the arena
func New(a *layer.Arena, name string, vocab, dim int) (o *EmbeddingLayer, err error) {
	if vocab <= 0 || dim <= 0 {
		return nil, errInvalid(vocab, dim)
	}
	o = new(EmbeddingLayer)
	o.vocab = vocab
	o.dim = dim
	o.table = a.Alloc(name+".weight", vocab, dim)
	return
}

// Kind reports layer.Embedding
func (e *EmbeddingLayer) Kind() layer.Kind {
	return layer.Embedding
}

// Parameters returns the table
func (e *EmbeddingLayer) Parameters() []*layer.Parameter {
	return []*layer.Parameter{e.table}
}
