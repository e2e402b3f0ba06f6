package learning

import "fmt"
import "math"

import "github.com/pkg/errors"

// Schedule maps an iteration number to a learning rate: linear warmup,
// cosine decay and a floor.
type Schedule struct {
	base    float64
	min     float64
	warmup  int
	decay   int
	enabled bool
}

// NewSchedule builds the schedule of h. It fails when the decay ratio could
// leave [0, 1] for some iteration.
func NewSchedule(h *HyperParameters) (Schedule, error) {
	s := Schedule{
		base:    h.LearningRate,
		min:     h.MinLR,
		warmup:  h.WarmupIters,
		decay:   h.LRDecayIters,
		enabled: h.DecayLR,
	}
	if h.LearningRate <= 0 {
		return s, errors.Wrapf(ErrConfig, "learning rate %g must be positive", h.LearningRate)
	}
	if !s.enabled {
		return s, nil
	}
	if s.warmup < 0 {
		return s, errors.Wrapf(ErrConfig, "warmup iters %d must not be negative", s.warmup)
	}
	if s.decay <= s.warmup {
		return s, errors.Wrapf(ErrConfig, "lr decay iters %d must exceed warmup iters %d", s.decay, s.warmup)
	}
	if s.min < 0 || s.min > s.base {
		return s, errors.Wrapf(ErrConfig, "min lr %g must lie in [0, %g]", s.min, s.base)
	}
	return s, nil
}

// Rate returns the learning rate for iteration it.
func (s Schedule) Rate(it int) float64 {
	if !s.enabled {
		return s.base
	}
	// 1) linear warmup
	if it < s.warmup {
		return s.base * float64(it) / float64(s.warmup)
	}
	// 2) floor after the decay horizon
	if it > s.decay {
		return s.min
	}
	// 3) cosine decay in between
	ratio := float64(it-s.warmup) / float64(s.decay-s.warmup)
	if !(ratio >= 0 && ratio <= 1) {
		panic(fmt.Sprintf("decay ratio %g out of range at iteration %d", ratio, it))
	}
	coeff := 0.5 * (1.0 + math.Cos(math.Pi*ratio))
	return s.min + coeff*(s.base-s.min)
}
