package datasets

import "io"

import "github.com/pkg/errors"

// Batch is a micro-batch of sequences.
type Batch []Sequence

// Inputs returns tokens[0:block] of every row.
func (b Batch) Inputs(block int) [][]int {
	out := make([][]int, len(b))
	for i, s := range b {
		out[i] = s[:block]
	}
	return out
}

// Targets returns tokens[1:block+1] of every row, the next token of each input.
func (b Batch) Targets(block int) [][]int {
	out := make([][]int, len(b))
	for i, s := range b {
		out[i] = s[1 : block+1]
	}
	return out
}

// Loader groups a source into micro-batches of fixed length sequences.
type Loader struct {
	src    Source
	micro  int
	length int
}

// NewLoader creates a loader of micro sequences of length tokens each.
func NewLoader(src Source, micro, length int) *Loader {
	return &Loader{src: src, micro: micro, length: length}
}

// Next returns the next batch. The last batch may be short; io.EOF follows it.
func (l *Loader) Next() (Batch, error) {
	b := make(Batch, 0, l.micro)
	for len(b) < l.micro {
		seq, err := l.src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(seq) != l.length {
			return nil, errors.Errorf("sequence of %d tokens, want %d", len(seq), l.length)
		}
		b = append(b, seq)
	}
	if len(b) == 0 {
		return nil, io.EOF
	}
	return b, nil
}

// Skip discards n batches, restarting the source whenever it runs dry, the
// same way a training loop that resets on io.EOF consumes it.
func (l *Loader) Skip(n int) error {
	for i := 0; i < n; i++ {
		_, err := l.Next()
		if err == io.EOF {
			if err = l.Reset(); err == nil {
				_, err = l.Next()
			}
		}
		if err != nil {
			return errors.Wrapf(err, "skipping batch %d of %d", i, n)
		}
	}
	return nil
}

// Reset restarts the underlying source.
func (l *Loader) Reset() error {
	return l.src.Reset()
}
