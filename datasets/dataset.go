// Package datasets implements the token sequence sources of the trainer:
// packed shard files, the weighted corpus mixture and synthetic samples.
package datasets

import "io"

import "github.com/charmbracelet/log"
import "github.com/pkg/errors"

// ErrNoData is returned when none of the configured corpora has any usable shard.
var ErrNoData = errors.New("no data found")

// Sequence is a fixed length run of token ids, one token longer than the
// model block so that targets can be derived by shifting.
type Sequence []int

// Source is a stream of sequences. Next returns io.EOF when the stream is
// exhausted. Reset restarts the stream in its initial, seeded order.
type Source interface {
	Next() (Sequence, error)
	Reset() error
}

// Corpus names a family of shard files by prefix and gives its mixing weight.
type Corpus struct {
	Prefix string
	Weight float64
}

func discard() *log.Logger {
	return log.New(io.Discard)
}
