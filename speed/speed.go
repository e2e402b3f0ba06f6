// Package speed estimates and measures the floating point work of a
// training batch and reports throughput over a sliding window.
package speed

import "time"

import "github.com/neurlang/pretrain/net/causal"

// EstimateFlops returns the training flops of one batch of batch full
// length sequences from the parameter count: two flops per parameter and
// token forward, twice that backward.
func EstimateFlops(n *causal.Network, batch int) float64 {
	tokens := float64(batch * n.Config().BlockSize)
	return 6 * float64(n.Len()) * tokens
}

// MeasureFlops counts the operations the network performs for one forward
// and backward pass over batch full length sequences. n may be a meta network.
func MeasureFlops(n *causal.Network, batch int) float64 {
	f, b := n.Flops(batch, n.Config().BlockSize)
	return f + b
}

// Metrics are the throughput figures of the last window.
type Metrics struct {
	BatchesPerSec float64
	SamplesPerSec float64
	TokensPerSec  float64
	FlopsPerSec   float64
	MFU           float64
}

// Map returns the metrics keyed as in the csv log.
func (m Metrics) Map() map[string]float64 {
	return map[string]float64{
		"throughput/batches_per_sec": m.BatchesPerSec,
		"throughput/samples_per_sec": m.SamplesPerSec,
		"throughput/tokens_per_sec":  m.TokensPerSec,
		"throughput/flops_per_sec":   m.FlopsPerSec,
		"throughput/mfu":             m.MFU,
	}
}

type sample struct {
	batches int
	samples int
	tokens  int
	flops   float64
	elapsed time.Duration
}

// Monitor accumulates per batch counters of one worker and extrapolates
// them to the whole group.
type Monitor struct {
	window  int
	peak    float64
	world   int
	total   sample
	history []sample
}

// NewMonitor creates a monitor averaging over window batches. peak is the
// peak flops of one worker; zero disables MFU.
func NewMonitor(window int, peak float64, world int) *Monitor {
	return &Monitor{window: max(window, 1), peak: peak, world: max(world, 1)}
}

// Update records one finished batch and returns the window metrics once
// the window is full.
func (m *Monitor) Update(samples, tokens int, flops float64, elapsed time.Duration) (Metrics, bool) {
	m.total.batches++
	m.total.samples += samples
	m.total.tokens += tokens
	m.total.flops += flops
	m.total.elapsed += elapsed
	m.history = append(m.history, m.total)
	if len(m.history) <= m.window {
		return Metrics{}, false
	}
	m.history = m.history[len(m.history)-m.window-1:]
	first, last := m.history[0], m.history[len(m.history)-1]
	dt := (last.elapsed - first.elapsed).Seconds()
	if dt <= 0 {
		return Metrics{}, false
	}
	w := float64(m.world)
	out := Metrics{
		BatchesPerSec: float64(last.batches-first.batches) / dt,
		SamplesPerSec: w * float64(last.samples-first.samples) / dt,
		TokensPerSec:  w * float64(last.tokens-first.tokens) / dt,
		FlopsPerSec:   w * (last.flops - first.flops) / dt,
	}
	if m.peak > 0 {
		out.MFU = out.FlopsPerSec / (w * m.peak)
	}
	return out, true
}
