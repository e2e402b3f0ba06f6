package trainer

import (
	"io"

	"github.com/neurlang/pretrain/loss"
)

// validate averages the loss of up to EvalIters batches of the validation
// stream over all workers, then waits for every worker.
func (t *Trainer) validate() (float64, error) {
	t.setPhase(Validating)
	if err := t.val.Reset(); err != nil {
		return 0, err
	}
	var sum float64
	var n int
	for k := 0; k < t.h.EvalIters; k++ {
		batch, err := t.val.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		pass, err := t.net.Forward(batch.Inputs(t.cfg.BlockSize))
		if err != nil {
			return 0, err
		}
		sum += loss.CrossEntropy(pass.Logits(), flatten(batch.Targets(t.cfg.BlockSize)), lossChunk)
		n++
	}
	totals := []float64{sum, float64(n)}
	if err := t.r.AllReduceMean(totals); err != nil {
		return 0, err
	}
	if err := t.r.Barrier(); err != nil {
		return 0, err
	}
	if totals[1] == 0 {
		t.logger.Warn("validation data is empty")
		return 0, nil
	}
	return totals[0] / totals[1], nil
}
