// Package causal implements the reference causal language network: token
// embedding, a causal running mean over the previous positions, a learned
// gain and a linear head producing next token logits.
package causal

import "math/rand/v2"

import "github.com/pkg/errors"
import "gonum.org/v1/gonum/mat"

import "github.com/neurlang/pretrain/layer"
import "github.com/neurlang/pretrain/layer/embedding"
import "github.com/neurlang/pretrain/layer/full"
import "github.com/neurlang/pretrain/layer/gain"

// ErrMeta is returned when a meta network is asked to compute.
var ErrMeta = errors.New("meta network has no parameters")

// Config describes a network preset.
type Config struct {
	Name      string
	VocabSize int
	BlockSize int
	Dim       int
}

var presets = map[string]Config{
	"tiny":  {Name: "tiny", VocabSize: 256, BlockSize: 32, Dim: 16},
	"phi-2": {Name: "phi-2", VocabSize: 51200, BlockSize: 64, Dim: 64},
}

// ConfigFromName returns the named preset.
func ConfigFromName(name string) (Config, error) {
	c, ok := presets[name]
	if !ok {
		return Config{}, errors.Errorf("unknown model %q", name)
	}
	return c, nil
}

// NumParams returns the parameter count of the configuration.
func (c Config) NumParams() int {
	return c.VocabSize*c.Dim + c.Dim + c.Dim*c.VocabSize + c.VocabSize
}

// Network is the causal network. All parameters live in one arena, so
// Params and Grads are flat vectors in a fixed order.
type Network struct {
	cfg   Config
	arena *layer.Arena
	wte   *embedding.EmbeddingLayer
	ln    *gain.GainLayer
	head  *full.FullLayer
}

// New creates a network with zeroed parameters. Call Init before training.
func New(cfg Config) (*Network, error) {
	return build(cfg, layer.NewArena(cfg.NumParams()))
}

// NewMeta creates a network that only knows its shapes, for FLOP accounting.
func NewMeta(cfg Config) (*Network, error) {
	return build(cfg, layer.NewMetaArena())
}

func build(cfg Config, a *layer.Arena) (n *Network, err error) {
	if cfg.BlockSize <= 0 {
		return nil, errors.Errorf("block size %d must be positive", cfg.BlockSize)
	}
	n = &Network{cfg: cfg, arena: a}
	if n.wte, err = embedding.New(a, "wte", cfg.VocabSize, cfg.Dim); err != nil {
		return nil, err
	}
	if n.ln, err = gain.New(a, "ln_f", cfg.Dim); err != nil {
		return nil, err
	}
	if n.head, err = full.New(a, "lm_head", cfg.Dim, cfg.VocabSize); err != nil {
		return nil, err
	}
	return n, nil
}

// Config returns the preset the network was built from.
func (n *Network) Config() Config {
	return n.cfg
}

// Meta reports whether the network has no storage.
func (n *Network) Meta() bool {
	return n.arena.Data == nil
}

// Layers returns the trainable layers in initialization order.
func (n *Network) Layers() []layer.Layer {
	return []layer.Layer{n.wte, n.ln, n.head}
}

// Parameters returns every parameter tensor in arena order.
func (n *Network) Parameters() (o []*layer.Parameter) {
	for _, l := range n.Layers() {
		o = append(o, l.Parameters()...)
	}
	return
}

// Init initializes all layers from seed.
func (n *Network) Init(seed uint64) {
	layer.InitAll(n.Layers(), rand.New(rand.NewPCG(seed, 0)))
}

// Len returns the number of parameters.
func (n *Network) Len() int {
	return n.arena.Used()
}

// Params returns the flat parameter vector.
func (n *Network) Params() []float64 {
	return n.arena.Data
}

// Grads returns the flat gradient vector.
func (n *Network) Grads() []float64 {
	return n.arena.Grad
}

// ZeroGrad clears the gradients.
func (n *Network) ZeroGrad() {
	n.arena.ZeroGrad()
}

// Pass holds the activations of one forward pass for the backward pass.
type Pass struct {
	n      *Network
	rows   int
	seq    int
	ids    []int
	h      *mat.Dense
	z      *mat.Dense
	logits *mat.Dense
}

// Forward computes the logits of every position of inputs. Every row must
// have the same length, at most the block size.
func (n *Network) Forward(inputs [][]int) (*Pass, error) {
	if n.Meta() {
		return nil, ErrMeta
	}
	if len(inputs) == 0 {
		return nil, errors.New("empty batch")
	}
	seq := len(inputs[0])
	if seq == 0 || seq > n.cfg.BlockSize {
		return nil, errors.Errorf("sequence length %d outside (0, %d]", seq, n.cfg.BlockSize)
	}
	ids := make([]int, 0, len(inputs)*seq)
	for _, row := range inputs {
		if len(row) != seq {
			return nil, errors.Errorf("ragged batch: rows of %d and %d tokens", seq, len(row))
		}
		ids = append(ids, row...)
	}
	e, err := n.wte.Forward(ids)
	if err != nil {
		return nil, err
	}
	p := &Pass{n: n, rows: len(inputs), seq: seq, ids: ids}
	p.h = causalMean(e, p.rows, seq)
	p.z = n.ln.Forward(p.h)
	p.logits = n.head.Forward(p.z)
	return p, nil
}

// Logits returns the (batch*seq) x vocab logits, row major by sequence.
func (p *Pass) Logits() *mat.Dense {
	return p.logits
}

// Backward accumulates the parameter gradients for the logit gradient dlogits.
func (p *Pass) Backward(dlogits *mat.Dense) {
	dz := p.n.head.Backward(p.z, dlogits)
	dh := p.n.ln.Backward(p.h, dz)
	p.n.wte.Backward(p.ids, causalMeanGrad(dh, p.rows, p.seq))
}

// causalMean returns h_t = e_t + mean(e_0..e_t) within each sequence.
func causalMean(e *mat.Dense, rows, seq int) *mat.Dense {
	_, dim := e.Dims()
	h := mat.NewDense(rows*seq, dim, nil)
	acc := make([]float64, dim)
	for r := 0; r < rows; r++ {
		for j := range acc {
			acc[j] = 0
		}
		for t := 0; t < seq; t++ {
			in, out := e.RawRowView(r*seq+t), h.RawRowView(r*seq+t)
			inv := 1 / float64(t+1)
			for j, v := range in {
				acc[j] += v
				out[j] = v + acc[j]*inv
			}
		}
	}
	return h
}

func causalMeanGrad(dh *mat.Dense, rows, seq int) *mat.Dense {
	_, dim := dh.Dims()
	de := mat.NewDense(rows*seq, dim, nil)
	acc := make([]float64, dim)
	for r := 0; r < rows; r++ {
		for j := range acc {
			acc[j] = 0
		}
		for t := seq - 1; t >= 0; t-- {
			in, out := dh.RawRowView(r*seq+t), de.RawRowView(r*seq+t)
			inv := 1 / float64(t+1)
			for j, v := range in {
				acc[j] += v * inv
				out[j] = v + acc[j]
			}
		}
	}
	return de
}

// Flops returns the floating point operation counts of a forward and a
// backward pass over batch sequences of seq tokens.
func (n *Network) Flops(batch, seq int) (forward, backward float64) {
	rows := batch * seq
	hf, hb := n.head.Flops(rows)
	d := float64(rows * n.cfg.Dim)
	forward = hf + 3*d
	backward = hb + 5*d
	return
}
