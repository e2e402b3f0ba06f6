package datasets

import (
	"io"
	"math/rand/v2"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// Combined draws each sequence from one of several sources, chosen at random
// with probability proportional to the source weight.
type Combined struct {
	sources []Source
	weights []float64
	active  []int
	seed    uint64
	rng     *rand.Rand
}

// NewCombined mixes sources by weight. Weights are normalized to sum to one.
func NewCombined(sources []Source, weights []float64, seed uint64) (*Combined, error) {
	if len(sources) == 0 {
		return nil, ErrNoData
	}
	if len(weights) != len(sources) {
		return nil, errors.Errorf("%d weights for %d sources", len(weights), len(sources))
	}
	var sum float64
	for _, w := range weights {
		if w <= 0 {
			return nil, errors.Errorf("weight %g must be positive", w)
		}
		sum += w
	}
	norm := make([]float64, len(weights))
	for i, w := range weights {
		norm[i] = w / sum
	}
	c := &Combined{
		sources: sources,
		weights: norm,
		seed:    seed,
	}
	c.reset()
	return c, nil
}

func (c *Combined) reset() {
	c.rng = rand.New(rand.NewPCG(c.seed, 0))
	c.active = c.active[:0]
	for i := range c.sources {
		c.active = append(c.active, i)
	}
}

// Reset restarts the mixture and every source.
func (c *Combined) Reset() error {
	c.reset()
	for _, s := range c.sources {
		if err := s.Reset(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Combined) pick() int {
	var total float64
	for _, i := range c.active {
		total += c.weights[i]
	}
	r := c.rng.Float64() * total
	for n, i := range c.active {
		r -= c.weights[i]
		if r < 0 {
			return n
		}
	}
	return len(c.active) - 1
}

// Next returns a sequence from a randomly chosen source. Exhausted sources
// leave the mixture and the rest are renormalized.
func (c *Combined) Next() (Sequence, error) {
	for len(c.active) > 0 {
		n := c.pick()
		seq, err := c.sources[c.active[n]].Next()
		if err == io.EOF {
			c.active = append(c.active[:n], c.active[n+1:]...)
			continue
		}
		return seq, err
	}
	return nil, io.EOF
}

// OpenCorpora builds the corpus mixture found under dir. Corpora without
// shard files for this worker are left out with a warning; ErrNoData is
// returned when none remains.
func OpenCorpora(dir string, corpora []Corpus, opt PackedOptions, logger *log.Logger) (*Combined, error) {
	if logger == nil {
		logger = discard()
	}
	var sources []Source
	var weights []float64
	for _, c := range corpora {
		files, err := globShards(dir, c.Prefix)
		if err != nil {
			return nil, errors.Wrapf(err, "corpus %q", c.Prefix)
		}
		p := NewPacked(files, opt)
		if p.Len() == 0 {
			logger.Warn("corpus has no shards", "prefix", c.Prefix, "dir", dir, "files", len(files), "rank", opt.Rank)
			continue
		}
		logger.Debug("corpus", "prefix", c.Prefix, "files", p.Len(), "weight", c.Weight)
		sources = append(sources, p)
		weights = append(weights, c.Weight)
	}
	if len(sources) == 0 {
		return nil, errors.Wrapf(ErrNoData, "at %s: prepare the packed shards first", dir)
	}
	return NewCombined(sources, weights, opt.Seed)
}

// globShards lists the shard files of a corpus prefix in lexical order.
func globShards(dir, prefix string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, prefix+"*.bin"))
}
