package trainer

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/neurlang/pretrain/csvlog"
	"github.com/neurlang/pretrain/datasets"
	"github.com/neurlang/pretrain/device"
	"github.com/neurlang/pretrain/learning"
	"github.com/neurlang/pretrain/net/causal"
	"github.com/neurlang/pretrain/parallel"
	"github.com/neurlang/pretrain/speed"
)

// lossChunk is the number of logit rows the cross entropy handles at once.
const lossChunk = 128

// Options are the per invocation settings of a run.
type Options struct {
	Devices    int
	TrainDir   string
	ValDir     string // empty disables validation
	Precision  device.Precision
	Resume     bool   // resume from the latest checkpoint of the run
	ResumeFrom string // resume from this checkpoint file
}

// Run validates the configuration, resolves the checkpoint to resume from,
// and trains on opt.Devices workers until h.MaxIters. Configuration and
// resume errors are returned before any worker starts.
func Run(ctx context.Context, h *learning.HyperParameters, opt Options, logger *log.Logger) error {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if err := h.Validate(); err != nil {
		return err
	}
	cfg, err := causal.ConfigFromName(h.ModelName)
	if err != nil {
		return errors.Wrap(learning.ErrConfig, err.Error())
	}
	if opt.Precision == "" {
		opt.Precision = device.DefaultPrecision()
	}
	devices, err := device.Resolve(opt.Devices)
	if err != nil {
		return err
	}
	resume, err := resolveResume(h, opt)
	if err != nil {
		return err
	}
	for _, d := range devices {
		logger.Debug("device", "index", d.Index, "kind", d.Kind, "name", d.Name, "memory", d.Memory)
	}
	g, err := parallel.NewGroup(len(devices), logger)
	if err != nil {
		return err
	}
	peak := device.PeakFlops(opt.Precision)
	if devices[0].Kind == "cpu" {
		peak /= float64(len(devices))
	}
	return g.Run(ctx, func(ctx context.Context, r *parallel.Rank) error {
		t, err := New(r, h, cfg, opt, resume, peak)
		if err != nil {
			return err
		}
		defer t.Close()
		return t.Train(ctx)
	})
}

// Trainer is one worker's training loop.
type Trainer struct {
	r         *parallel.Rank
	h         *learning.HyperParameters
	cfg       causal.Config
	precision device.Precision
	outDir    string
	logger    *log.Logger

	net      *causal.Network
	opt      *learning.AdamW
	schedule learning.Schedule
	accum    int
	lo, hi   int

	train *datasets.Loader
	val   *datasets.Loader

	state   State
	phase   Phase
	saved   int
	csv     *csvlog.Logger
	monitor *speed.Monitor
	flops   float64
}

// New initializes the worker r: data, network, optimizer and, when resume
// names a checkpoint, the restored state.
func New(r *parallel.Rank, h *learning.HyperParameters, cfg causal.Config, o Options, resume string, peak float64) (*Trainer, error) {
	t := &Trainer{
		r:         r,
		h:         h,
		cfg:       cfg,
		precision: o.Precision,
		outDir:    filepath.Join(h.OutDir, h.Name),
		logger:    r.Logger(),
		accum:     h.GradientAccumulationSteps(),
		saved:     -1,
	}
	t.setPhase(Initializing)

	var err error
	if t.schedule, err = learning.NewSchedule(h); err != nil {
		return nil, err
	}
	if t.train, err = t.loader(o.TrainDir, true); err != nil {
		return nil, err
	}
	if o.ValDir != "" {
		if t.val, err = t.loader(o.ValDir, false); err != nil {
			return nil, err
		}
	}

	if t.net, err = causal.New(cfg); err != nil {
		return nil, err
	}
	t.net.Init(h.InitSeed)
	t.precision.RoundAll(t.net.Params())
	t.opt = learning.NewAdamW(h, t.net.Len())
	t.lo, t.hi = parallel.Shard(t.net.Len(), r.World(), r.Rank())
	t.state.HParams = h.Map()
	t.r.Print("model", "name", cfg.Name, "parameters", t.net.Len(), "workers", r.World(), "precision", t.precision)

	if resume != "" {
		if err := t.resume(resume); err != nil {
			return nil, err
		}
	}

	if r.Coordinator() {
		if t.csv, err = csvlog.New(h.OutDir, h.Name, metricColumns()...); err != nil {
			return nil, err
		}
		t.state.HParams["run_id"] = t.csv.RunID()
		if err := t.csv.LogHyperParams(t.state.HParams); err != nil {
			return nil, err
		}
	}
	t.monitor = speed.NewMonitor(50, peak, r.World())
	return t, nil
}

// metricColumns lists every metric the loop logs.
func metricColumns() []string {
	cols := []string{"train_loss", "lr", "val_loss"}
	for k := range (speed.Metrics{}).Map() {
		cols = append(cols, k)
	}
	return cols
}

func (t *Trainer) loader(dir string, train bool) (*datasets.Loader, error) {
	src, err := datasets.OpenCorpora(dir, t.h.Corpora, datasets.PackedOptions{
		NChunks:   t.h.NChunks,
		BlockSize: t.cfg.BlockSize + 1,
		Shuffle:   train,
		Wrap:      train,
		Seed:      t.h.Seed + uint64(t.r.Rank()),
		Rank:      t.r.Rank(),
		World:     t.r.World(),
	}, t.logger)
	if err != nil {
		return nil, err
	}
	return datasets.NewLoader(src, t.h.MicroBatchSize, t.cfg.BlockSize+1), nil
}

func (t *Trainer) setPhase(p Phase) {
	if t.phase == p && p != Initializing {
		return
	}
	t.phase = p
	t.logger.Debug("phase", "phase", p, "iter", t.state.IterNum, "step", t.state.StepCount)
}

// Phase returns the current phase.
func (t *Trainer) Phase() Phase {
	return t.phase
}

// State returns the training state. Params and optimizer moments are only
// complete on every worker right after a checkpoint.
func (t *Trainer) State() *State {
	t.state.Params = t.net.Params()
	t.state.Optimizer = *t.opt.State()
	return &t.state
}

// Close flushes the csv log.
func (t *Trainer) Close() error {
	if t.csv != nil {
		return t.csv.Close()
	}
	return nil
}

// warmUp reports the flops of a micro-batch from a meta network and runs
// the sanity validation.
func (t *Trainer) warmUp() error {
	t.setPhase(WarmingUp)
	meta, err := causal.NewMeta(t.cfg)
	if err != nil {
		return err
	}
	world := float64(t.r.World())
	estimated := speed.EstimateFlops(meta, t.h.MicroBatchSize)
	t.r.Print("estimated TFLOPs", "tflops", estimated*world/1e12)
	t.flops = speed.MeasureFlops(meta, t.h.MicroBatchSize)
	t.r.Print("measured TFLOPs", "tflops", t.flops*world/1e12)

	if t.val != nil {
		start := time.Now()
		loss, err := t.validate()
		if err != nil {
			return err
		}
		t.r.Print("sanity validation", "val_loss", loss, "time", time.Since(start))
	}
	return nil
}
