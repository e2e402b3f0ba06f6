package datasets

import (
	"io"
	"math/rand/v2"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/neurlang/pretrain/pretrained"
)

// Generated manufactures sequences by prompting a pretrained model with a
// random vocabulary word and re-tokenizing the continuation to a fixed length.
// The seed words are reproducible; the continuations may not be.
type Generated struct {
	provider   pretrained.Provider
	vocab      []string
	length     int
	numSamples int
	seed       uint64
	logger     *log.Logger

	rng      *rand.Rand
	produced int
	failures int
	words    []string
}

// NewGenerated creates a generator of numSamples sequences of length tokens.
func NewGenerated(p pretrained.Provider, length, numSamples int, seed uint64, logger *log.Logger) (*Generated, error) {
	vocab := p.Vocab()
	if len(vocab) == 0 {
		return nil, errors.New("pretrained provider has an empty vocabulary")
	}
	if length <= 0 || numSamples < 0 {
		return nil, errors.Errorf("invalid length %d or sample count %d", length, numSamples)
	}
	if logger == nil {
		logger = discard()
	}
	g := &Generated{
		provider:   p,
		vocab:      vocab,
		length:     length,
		numSamples: numSamples,
		seed:       seed,
		logger:     logger,
	}
	g.Reset()
	return g, nil
}

// Reset restarts the seed word sequence.
func (g *Generated) Reset() error {
	g.rng = rand.New(rand.NewPCG(g.seed, 0))
	g.produced = 0
	g.failures = 0
	g.words = nil
	return nil
}

// Words returns the seed words drawn so far, including skipped ones.
func (g *Generated) Words() []string {
	return g.words
}

// Next returns the next synthetic sequence, or io.EOF after numSamples.
func (g *Generated) Next() (Sequence, error) {
	for g.produced < g.numSamples {
		word := g.vocab[g.rng.IntN(len(g.vocab))]
		g.words = append(g.words, word)

		seq, err := g.sample(word)
		if err != nil {
			g.logger.Warn("generation failed, retrying", "word", word, "err", err)
			seq, err = g.sample(word)
		}
		if err != nil {
			g.logger.Error("generation failed, skipping sample", "word", word, "err", err)
			g.failures++
			if g.failures > g.numSamples {
				return nil, errors.Wrapf(err, "%d consecutive generation failures", g.failures)
			}
			continue
		}
		g.failures = 0
		g.produced++
		return seq, nil
	}
	return nil, io.EOF
}

func (g *Generated) sample(word string) (Sequence, error) {
	prompt, err := g.provider.Encode(word)
	if err != nil {
		return nil, errors.Wrap(err, "encode prompt")
	}
	out, err := g.provider.Generate(prompt, g.length)
	if err != nil {
		return nil, errors.Wrap(err, "generate")
	}
	text, err := pretrained.DecodeText(g.provider, out)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	ids, err := pretrained.EncodeFixed(g.provider, text, g.length)
	if err != nil {
		return nil, errors.Wrap(err, "re-encode")
	}
	return Sequence(ids), nil
}
