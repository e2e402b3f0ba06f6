package trainer

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/neurlang/pretrain/datasets"
	"github.com/neurlang/pretrain/learning"
	"github.com/neurlang/pretrain/loss"
)

// Train runs the loop until the iteration ceiling and writes the terminal
// checkpoint. A cancelled ctx stops the loop between iterations.
func (t *Trainer) Train(ctx context.Context) error {
	if err := t.warmUp(); err != nil {
		return err
	}
	t.setPhase(Running)
	for {
		if err := ctx.Err(); err != nil {
			t.r.Print("training interrupted", "iter", t.state.IterNum, "step", t.state.StepCount)
			return err
		}
		if t.state.IterNum >= t.h.MaxIters {
			if t.saved != t.state.IterNum {
				if err := t.save(); err != nil {
					return err
				}
			}
			t.setPhase(Terminal)
			t.r.Print("training finished", "iter", t.state.IterNum, "step", t.state.StepCount, "all_reduces", t.r.Reductions())
			return nil
		}
		stepped, err := t.iteration()
		if err != nil {
			return err
		}
		if !stepped {
			continue
		}
		if t.val != nil && t.state.StepCount%t.h.EvalInterval == 0 {
			start := time.Now()
			val, err := t.validate()
			if err != nil {
				return err
			}
			t.r.Print("validation", "step", t.state.StepCount, "val_loss", val, "time", time.Since(start))
			if t.csv != nil {
				if err := t.csv.LogMetrics(t.state.IterNum, map[string]float64{"val_loss": val}); err != nil {
					return err
				}
				if err := t.csv.Flush(); err != nil {
					return err
				}
			}
			t.setPhase(Running)
		}
		if t.state.StepCount%t.h.SaveInterval == 0 {
			if err := t.save(); err != nil {
				return err
			}
			t.setPhase(Running)
		}
	}
}

// iteration runs one micro-batch and, when it completes the accumulation
// window, one optimizer step.
func (t *Trainer) iteration() (stepped bool, err error) {
	start := time.Now()
	lr := t.schedule.Rate(t.state.IterNum)
	t.opt.SetLR(lr)

	batch, err := t.nextBatch()
	if err != nil {
		return false, err
	}
	pass, err := t.net.Forward(batch.Inputs(t.cfg.BlockSize))
	if err != nil {
		return false, err
	}
	logits := pass.Logits()
	l := loss.CrossEntropyGrad(logits, flatten(batch.Targets(t.cfg.BlockSize)), lossChunk, 1/float64(t.accum))
	pass.Backward(logits)
	t.state.IterNum++

	stepped = t.state.IterNum%t.accum == 0
	var norm float64
	if stepped {
		if norm, err = t.step(); err != nil {
			return false, err
		}
	}
	elapsed := time.Since(start)

	if t.state.IterNum%t.h.LogInterval == 0 {
		kv := []any{"iter", t.state.IterNum, "step", t.state.StepCount, "loss", l, "lr", lr, "iter_time", elapsed}
		if stepped {
			kv = append(kv, "optimizer_step", true, "grad_norm", norm)
		}
		t.r.Print("train", kv...)
	}
	metrics, ok := t.monitor.Update(len(batch), len(batch)*t.cfg.BlockSize, t.flops, elapsed)
	if t.csv != nil {
		row := map[string]float64{"train_loss": l, "lr": lr}
		if ok {
			for k, v := range metrics.Map() {
				row[k] = v
			}
		}
		if err := t.csv.LogMetrics(t.state.IterNum, row); err != nil {
			return false, err
		}
	}
	return stepped, nil
}

// step reduces the gradients across workers, clips them, updates this
// worker's parameter shard and re-replicates the parameters. The gradient
// all-reduce only happens here, so accumulating iterations never synchronize.
func (t *Trainer) step() (float64, error) {
	grads := t.net.Grads()
	if err := t.r.AllReduceMean(grads); err != nil {
		return 0, err
	}
	norm := learning.ClipGradNorm(grads, t.h.GradClip)
	params := t.net.Params()
	t.opt.Step(params, grads, t.lo, t.hi)
	t.precision.RoundAll(params[t.lo:t.hi])
	if err := t.r.AllGather(params); err != nil {
		return 0, err
	}
	t.net.ZeroGrad()
	t.state.StepCount++
	if math.IsNaN(norm) {
		t.logger.Warn("gradient norm is NaN", "iter", t.state.IterNum)
	}
	return norm, nil
}

// nextBatch returns the next training batch, restarting the stream when it
// runs dry.
func (t *Trainer) nextBatch() (datasets.Batch, error) {
	b, err := t.train.Next()
	if err == io.EOF {
		t.logger.Info("training data exhausted, restarting", "iter", t.state.IterNum)
		if err := t.train.Reset(); err != nil {
			return nil, err
		}
		b, err = t.train.Next()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading batch at iter %d", t.state.IterNum)
	}
	return b, nil
}

func flatten(rows [][]int) []int {
	var out []int
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
