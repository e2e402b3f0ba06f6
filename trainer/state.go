package trainer

import "github.com/neurlang/pretrain/learning"

// Phase is the state of the training state machine.
type Phase int

const (
	Initializing Phase = iota
	WarmingUp
	Running
	Validating
	Checkpointing
	Terminal
)

func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case WarmingUp:
		return "warming_up"
	case Running:
		return "running"
	case Validating:
		return "validating"
	case Checkpointing:
		return "checkpointing"
	case Terminal:
		return "terminal"
	}
	return "unknown"
}

// State is the training state persisted in checkpoints.
type State struct {
	IterNum   int                 `json:"iter_num"`   // completed iterations
	StepCount int                 `json:"step_count"` // completed optimizer steps
	HParams   map[string]any      `json:"hparams"`
	Params    []float64           `json:"params"`
	Optimizer learning.AdamWState `json:"optimizer"`
}
