// Package learning holds the run configuration, the learning rate schedule
// and the AdamW optimizer used by the trainer.
package learning

import "github.com/pkg/errors"

import "github.com/neurlang/pretrain/datasets"

// ErrConfig is the cause of every configuration error reported by Validate.
var ErrConfig = errors.New("invalid configuration")

// HyperParameters is the run configuration. It is built once at startup,
// validated, and passed by pointer. Nothing mutates it afterwards.
type HyperParameters struct {
	ModelName string // network preset, see causal.ConfigFromName
	Name      string // run name; checkpoints go to OutDir/Name
	OutDir    string // root of checkpoints and csv logs

	SaveInterval int // checkpoint every this many optimizer steps
	EvalInterval int // validate every this many optimizer steps
	EvalIters    int // number of validation batches
	LogInterval  int // print progress every this many iterations

	LearningRate   float64
	BatchSize      int // sequences per optimizer step and worker
	MicroBatchSize int // sequences per forward/backward
	MaxIters       int // iteration ceiling, the only normal exit
	WeightDecay    float64
	Beta1          float64
	Beta2          float64
	GradClip       float64 // max global gradient norm, 0 disables clipping
	DecayLR        bool
	WarmupIters    int
	LRDecayIters   int
	MinLR          float64

	Corpora  []datasets.Corpus // training mixture, weights need not sum to one
	NChunks  int               // packed shard files loaded at once per corpus
	Seed     uint64            // data seed; worker rank is added to it
	InitSeed uint64            // weight init seed, same on every worker

	NumSamples int // synthetic samples produced by generate_samples
}

// Default returns the configuration of the redpajama continued pretraining run.
func Default() *HyperParameters {
	return &HyperParameters{
		ModelName: "phi-2",
		Name:      "redpajama",
		OutDir:    "out",

		SaveInterval: 1000,
		EvalInterval: 1000,
		EvalIters:    100,
		LogInterval:  1,

		LearningRate:   6e-3,
		BatchSize:      8,
		MicroBatchSize: 8,
		MaxIters:       600000,
		WeightDecay:    1e-1,
		Beta1:          0.9,
		Beta2:          0.95,
		GradClip:       1.0,
		DecayLR:        true,
		WarmupIters:    2000,
		LRDecayIters:   600000,
		MinLR:          6e-6,

		Corpora: []datasets.Corpus{
			{Prefix: "arxiv_sample_00000000", Weight: 33.0},
			{Prefix: "book_sample_00000000", Weight: 33.0},
			{Prefix: "c4_sample_00000000", Weight: 24.0},
			{Prefix: "generated_data", Weight: 10.0},
		},
		NChunks:  2,
		Seed:     1337,
		InitSeed: 1337,

		NumSamples: 10,
	}
}

// GradientAccumulationSteps returns the number of micro-batches per optimizer step.
func (h *HyperParameters) GradientAccumulationSteps() int {
	if h.MicroBatchSize <= 0 {
		return 0
	}
	return h.BatchSize / h.MicroBatchSize
}

// Validate reports the first configuration error, wrapping ErrConfig.
func (h *HyperParameters) Validate() error {
	if h.BatchSize <= 0 || h.MicroBatchSize <= 0 {
		return errors.Wrapf(ErrConfig, "batch size %d and micro batch size %d must be positive",
			h.BatchSize, h.MicroBatchSize)
	}
	if h.GradientAccumulationSteps() <= 0 {
		return errors.Wrapf(ErrConfig, "gradient accumulation steps %d/%d must be positive",
			h.BatchSize, h.MicroBatchSize)
	}
	if h.MaxIters <= 0 {
		return errors.Wrapf(ErrConfig, "max iters %d must be positive", h.MaxIters)
	}
	if h.SaveInterval <= 0 || h.EvalInterval <= 0 || h.LogInterval <= 0 {
		return errors.Wrapf(ErrConfig, "intervals must be positive (save %d, eval %d, log %d)",
			h.SaveInterval, h.EvalInterval, h.LogInterval)
	}
	if h.EvalIters <= 0 {
		return errors.Wrapf(ErrConfig, "eval iters %d must be positive", h.EvalIters)
	}
	if h.GradClip < 0 {
		return errors.Wrapf(ErrConfig, "grad clip %g must not be negative", h.GradClip)
	}
	if h.Beta1 < 0 || h.Beta1 >= 1 || h.Beta2 < 0 || h.Beta2 >= 1 {
		return errors.Wrapf(ErrConfig, "betas (%g, %g) must lie in [0, 1)", h.Beta1, h.Beta2)
	}
	if h.NChunks <= 0 {
		return errors.Wrapf(ErrConfig, "n chunks %d must be positive", h.NChunks)
	}
	if len(h.Corpora) == 0 {
		return errors.Wrap(ErrConfig, "no corpora configured")
	}
	for _, c := range h.Corpora {
		if c.Weight <= 0 {
			return errors.Wrapf(ErrConfig, "corpus %q weight %g must be positive", c.Prefix, c.Weight)
		}
	}
	if _, err := NewSchedule(h); err != nil {
		return err
	}
	return nil
}

// Map returns the hyperparameter snapshot stored in checkpoints and csv logs.
func (h *HyperParameters) Map() map[string]any {
	return map[string]any{
		"model_name":                  h.ModelName,
		"name":                        h.Name,
		"out_dir":                     h.OutDir,
		"save_interval":               h.SaveInterval,
		"eval_interval":               h.EvalInterval,
		"eval_iters":                  h.EvalIters,
		"log_interval":                h.LogInterval,
		"learning_rate":               h.LearningRate,
		"batch_size":                  h.BatchSize,
		"micro_batch_size":            h.MicroBatchSize,
		"gradient_accumulation_steps": h.GradientAccumulationSteps(),
		"max_iters":                   h.MaxIters,
		"weight_decay":                h.WeightDecay,
		"beta1":                       h.Beta1,
		"beta2":                       h.Beta2,
		"grad_clip":                   h.GradClip,
		"decay_lr":                    h.DecayLR,
		"warmup_iters":                h.WarmupIters,
		"lr_decay_iters":              h.LRDecayIters,
		"min_lr":                      h.MinLR,
		"n_chunks":                    h.NChunks,
		"seed":                        h.Seed,
		"init_seed":                   h.InitSeed,
		"num_samples":                 h.NumSamples,
	}
}
