package trainer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/neurlang/pretrain/checkpoint"
	"github.com/neurlang/pretrain/learning"
	"github.com/neurlang/pretrain/parallel"
)

// resolveResume returns the checkpoint to resume from, or "" for a fresh run.
// An explicit checkpoint older than one already in the run directory is
// refused, since the resumed run could not save past it.
func resolveResume(h *learning.HyperParameters, o Options) (string, error) {
	if o.ResumeFrom != "" {
		iter, ok := checkpoint.Parse(o.ResumeFrom)
		if !ok {
			return "", errors.Wrapf(checkpoint.ErrNoCheckpoint, "%s is not a checkpoint file", o.ResumeFrom)
		}
		if _, err := os.Stat(o.ResumeFrom); err != nil {
			return "", errors.Wrapf(checkpoint.ErrNoCheckpoint, "%v", err)
		}
		list, err := checkpoint.List(filepath.Join(h.OutDir, h.Name))
		if err != nil {
			return "", err
		}
		for _, e := range list {
			if e.Iter > iter {
				return "", errors.Wrapf(checkpoint.ErrExists, "%s is newer than %s", e.Path, o.ResumeFrom)
			}
		}
		return o.ResumeFrom, nil
	}
	if !o.Resume {
		return "", nil
	}
	e, err := checkpoint.Latest(filepath.Join(h.OutDir, h.Name))
	if err != nil {
		return "", err
	}
	return e.Path, nil
}

// resume restores the state saved at path and fast-forwards the training
// stream past the batches the saved run already consumed.
func (t *Trainer) resume(path string) error {
	t.r.Print("resuming training", "checkpoint", path)
	var s State
	if err := checkpoint.Load(path, &s); err != nil {
		return err
	}
	if len(s.Params) != t.net.Len() {
		return errors.Errorf("%s has %d parameters, model %s has %d", path, len(s.Params), t.cfg.Name, t.net.Len())
	}
	if len(s.Optimizer.M) != t.net.Len() || len(s.Optimizer.V) != t.net.Len() {
		return errors.Errorf("%s has optimizer state for %d parameters", path, len(s.Optimizer.M))
	}
	copy(t.net.Params(), s.Params)
	t.opt.Restore(s.Optimizer)
	t.state.IterNum = s.IterNum
	t.state.StepCount = s.StepCount
	t.saved = s.IterNum
	if err := t.train.Skip(s.IterNum); err != nil {
		return errors.Wrap(err, "fast-forwarding training data")
	}
	t.logger.Debug("resumed", "iter", s.IterNum, "step", s.StepCount,
		"fingerprint", fmt.Sprintf("%x", parallel.Fingerprint(s.Params, 0)))
	return nil
}

// save gathers the sharded optimizer state, checks that every worker holds
// the same parameters, and writes the checkpoint from the coordinator.
func (t *Trainer) save() error {
	t.setPhase(Checkpointing)
	st := t.opt.State()
	if err := t.r.AllGather(st.M); err != nil {
		return err
	}
	if err := t.r.AllGather(st.V); err != nil {
		return err
	}
	if err := t.checkReplicas(); err != nil {
		return err
	}
	if t.r.Coordinator() {
		path, err := checkpoint.Save(t.outDir, t.state.IterNum, t.State())
		if err != nil {
			return err
		}
		t.r.Print("saved checkpoint", "path", path, "iter", t.state.IterNum, "step", t.state.StepCount)
		if t.csv != nil {
			if err := t.csv.Flush(); err != nil {
				return err
			}
		}
	}
	t.saved = t.state.IterNum
	return t.r.Barrier()
}

// checkReplicas compares the parameter fingerprint of every worker with
// the coordinator's.
func (t *Trainer) checkReplicas() error {
	sum := parallel.Fingerprint(t.net.Params(), 0)
	mine := make([]float64, len(sum))
	for i, b := range sum {
		mine[i] = float64(b)
	}
	root := append([]float64(nil), mine...)
	if err := t.r.Broadcast(root, 0); err != nil {
		return err
	}
	for i := range mine {
		if mine[i] != root[i] {
			return errors.Errorf("rank %d parameters diverged from rank 0 at iter %d", t.r.Rank(), t.state.IterNum)
		}
	}
	return nil
}
