package trainer

import (
	"context"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/neurlang/pretrain/checkpoint"
	"github.com/neurlang/pretrain/datasets"
	"github.com/neurlang/pretrain/device"
	"github.com/neurlang/pretrain/learning"
	"github.com/neurlang/pretrain/net/causal"
	"github.com/neurlang/pretrain/parallel"
)

// writeCorpora packs files shards of random tokens for each test corpus.
func writeCorpora(t *testing.T, dir string, files int) {
	t.Helper()
	rng := rand.New(rand.NewPCG(99, 0))
	for _, prefix := range []string{"arxiv_sample", "c4_sample"} {
		b, err := datasets.NewBuilder(dir, prefix, 33*8, 0, 256)
		if err != nil {
			t.Fatal(err)
		}
		tokens := make([]int, 33*8*files)
		for i := range tokens {
			tokens[i] = rng.IntN(256)
		}
		if err := b.Add(tokens); err != nil {
			t.Fatal(err)
		}
	}
}

func testHParams(out string) *learning.HyperParameters {
	h := learning.Default()
	h.ModelName = "tiny"
	h.Name = "test"
	h.OutDir = out
	h.BatchSize = 4
	h.MicroBatchSize = 4
	h.MaxIters = 4
	h.SaveInterval = 1000
	h.EvalInterval = 1000
	h.EvalIters = 2
	h.WarmupIters = 2
	h.LRDecayIters = 10
	h.MinLR = 6e-4
	h.Corpora = []datasets.Corpus{{Prefix: "arxiv_sample", Weight: 1}, {Prefix: "c4_sample", Weight: 2}}
	h.NChunks = 1
	return h
}

func run(t *testing.T, h *learning.HyperParameters, o Options) {
	t.Helper()
	if o.Devices == 0 {
		o.Devices = 1
	}
	o.Precision = device.F32True
	if err := Run(context.Background(), h, o, nil); err != nil {
		t.Fatal(err)
	}
}

func latest(t *testing.T, h *learning.HyperParameters) State {
	t.Helper()
	e, err := checkpoint.Latest(filepath.Join(h.OutDir, h.Name))
	if err != nil {
		t.Fatal(err)
	}
	var s State
	if err := checkpoint.Load(e.Path, &s); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestGradientAccumulationEquivalence(t *testing.T) {
	data := t.TempDir()
	writeCorpora(t, data, 2)

	whole := testHParams(t.TempDir())
	whole.DecayLR = false
	whole.MaxIters = 1
	run(t, whole, Options{TrainDir: data})

	halves := testHParams(t.TempDir())
	halves.DecayLR = false
	halves.MicroBatchSize = 2
	halves.MaxIters = 2
	run(t, halves, Options{TrainDir: data})

	a, b := latest(t, whole), latest(t, halves)
	if a.StepCount != 1 || b.StepCount != 1 || a.IterNum != 1 || b.IterNum != 2 {
		t.Fatalf("steps %d/%d iters %d/%d", a.StepCount, b.StepCount, a.IterNum, b.IterNum)
	}
	for i := range a.Params {
		if math.Abs(a.Params[i]-b.Params[i]) > 1e-6 {
			t.Fatalf("param %d: %g with one micro-batch, %g with two", i, a.Params[i], b.Params[i])
		}
	}
}

func TestResumeReproducesTrajectory(t *testing.T) {
	data := t.TempDir()
	writeCorpora(t, data, 2)

	straight := testHParams(t.TempDir())
	straight.MaxIters = 6
	run(t, straight, Options{TrainDir: data})

	split := testHParams(t.TempDir())
	split.MaxIters = 3
	split.SaveInterval = 1
	run(t, split, Options{TrainDir: data})
	split.MaxIters = 6
	run(t, split, Options{TrainDir: data, Resume: true})

	a, b := latest(t, straight), latest(t, split)
	if a.IterNum != 6 || b.IterNum != 6 || a.StepCount != b.StepCount {
		t.Fatalf("iters %d/%d steps %d/%d", a.IterNum, b.IterNum, a.StepCount, b.StepCount)
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			t.Fatalf("param %d: %g uninterrupted, %g resumed", i, a.Params[i], b.Params[i])
		}
	}
	for i := range a.Optimizer.V {
		if a.Optimizer.V[i] != b.Optimizer.V[i] {
			t.Fatalf("second moment %d differs after resume", i)
		}
	}
	if a.Optimizer.Step != b.Optimizer.Step {
		t.Errorf("optimizer steps %d/%d", a.Optimizer.Step, b.Optimizer.Step)
	}
}

func TestCheckpointAndValidationCadence(t *testing.T) {
	data := t.TempDir()
	writeCorpora(t, data, 2)
	h := testHParams(t.TempDir())
	h.MicroBatchSize = 2
	h.MaxIters = 8
	h.SaveInterval = 2
	h.EvalInterval = 1
	run(t, h, Options{TrainDir: data, ValDir: data})

	list, err := checkpoint.List(filepath.Join(h.OutDir, h.Name))
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Iter != 4 || list[1].Iter != 8 {
		t.Fatalf("checkpoints %v, want iterations 4 and 8", list)
	}
	metrics, err := os.ReadFile(filepath.Join(h.OutDir, h.Name, "version_0", "metrics.csv"))
	if err != nil {
		t.Fatal(err)
	}
	header := strings.SplitN(string(metrics), "\n", 2)[0]
	if !strings.Contains(header, "val_loss") || !strings.Contains(header, "train_loss") {
		t.Errorf("metrics header %q", header)
	}

	// resuming a finished run writes nothing new
	run(t, h, Options{TrainDir: data, Resume: true})
	list, _ = checkpoint.List(filepath.Join(h.OutDir, h.Name))
	if len(list) != 2 {
		t.Errorf("finished run wrote %d checkpoints", len(list))
	}
}

func TestTwoWorkers(t *testing.T) {
	data := t.TempDir()
	writeCorpora(t, data, 2)
	h := testHParams(t.TempDir())
	h.MaxIters = 3
	h.EvalInterval = 2
	run(t, h, Options{Devices: 2, TrainDir: data, ValDir: data})
	s := latest(t, h)
	if s.IterNum != 3 || s.StepCount != 3 {
		t.Errorf("iter %d step %d", s.IterNum, s.StepCount)
	}
	if s.HParams["run_id"] == nil {
		t.Errorf("checkpoint hparams lack the run id")
	}
}

func TestAccumulationSkipsGradientSync(t *testing.T) {
	data := t.TempDir()
	writeCorpora(t, data, 2)
	h := testHParams(t.TempDir())
	h.MicroBatchSize = h.BatchSize / 2
	h.MaxIters = 6
	cfg, err := causal.ConfigFromName(h.ModelName)
	if err != nil {
		t.Fatal(err)
	}
	g, err := parallel.NewGroup(2, nil)
	if err != nil {
		t.Fatal(err)
	}
	var reductions, steps [2]int
	err = g.Run(context.Background(), func(ctx context.Context, r *parallel.Rank) error {
		tr, err := New(r, h, cfg, Options{TrainDir: data, Precision: device.F32True}, "", 1e12)
		if err != nil {
			return err
		}
		defer tr.Close()
		if err := tr.Train(ctx); err != nil {
			return err
		}
		reductions[r.Rank()] = r.Reductions()
		steps[r.Rank()] = tr.State().StepCount
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for rank := range steps {
		if steps[rank] != 3 {
			t.Errorf("rank %d took %d optimizer steps, want 3", rank, steps[rank])
		}
		if reductions[rank] != steps[rank] {
			t.Errorf("rank %d all-reduced %d times in %d steps", rank, reductions[rank], steps[rank])
		}
	}
}

func TestResumeFromOlderCheckpoint(t *testing.T) {
	data := t.TempDir()
	writeCorpora(t, data, 2)
	h := testHParams(t.TempDir())
	h.MaxIters = 3
	h.SaveInterval = 1
	run(t, h, Options{TrainDir: data})

	dir := filepath.Join(h.OutDir, h.Name)
	h.MaxIters = 6
	err := Run(context.Background(), h, Options{
		Devices:    1,
		TrainDir:   data,
		Precision:  device.F32True,
		ResumeFrom: filepath.Join(dir, checkpoint.Name(1)),
	}, nil)
	if !errors.Is(err, checkpoint.ErrExists) {
		t.Fatalf("resuming behind newer checkpoints gave %v", err)
	}
	if !strings.Contains(err.Error(), checkpoint.Name(2)) {
		t.Errorf("error %q does not name the newer checkpoint", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "version_1")); !os.IsNotExist(err) {
		t.Errorf("refused resume started a run: %v", err)
	}

	// the newest checkpoint is still a valid starting point
	run(t, h, Options{TrainDir: data, ResumeFrom: filepath.Join(dir, checkpoint.Name(3))})
	if s := latest(t, h); s.IterNum != 6 {
		t.Errorf("resumed run stopped at %d", s.IterNum)
	}
}

func TestFatalErrors(t *testing.T) {
	data := t.TempDir()
	writeCorpora(t, data, 1)
	ctx := context.Background()

	h := testHParams(t.TempDir())
	err := Run(ctx, h, Options{Devices: 1, TrainDir: t.TempDir()}, nil)
	if !errors.Is(err, datasets.ErrNoData) {
		t.Errorf("empty data dir gave %v", err)
	}

	err = Run(ctx, h, Options{Devices: 1, TrainDir: data, Resume: true}, nil)
	if !errors.Is(err, checkpoint.ErrNoCheckpoint) {
		t.Errorf("resume without checkpoints gave %v", err)
	}

	bad := testHParams(t.TempDir())
	bad.MicroBatchSize = 8
	if err := Run(ctx, bad, Options{Devices: 1, TrainDir: data}, nil); !errors.Is(err, learning.ErrConfig) {
		t.Errorf("zero accumulation steps gave %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	h = testHParams(t.TempDir())
	if err := Run(cancelled, h, Options{Devices: 1, TrainDir: data}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled run gave %v", err)
	}
	if list, _ := checkpoint.List(filepath.Join(h.OutDir, h.Name)); len(list) != 0 {
		t.Errorf("cancelled run wrote %v", list)
	}
}

func TestPhaseNames(t *testing.T) {
	for p := Initializing; p <= Terminal; p++ {
		if p.String() == "unknown" {
			t.Errorf("phase %d has no name", p)
		}
	}
}
