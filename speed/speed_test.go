package speed

import (
	"math"
	"testing"
	"time"

	"github.com/neurlang/pretrain/net/causal"
)

func TestFlops(t *testing.T) {
	cfg, _ := causal.ConfigFromName("tiny")
	meta, err := causal.NewMeta(cfg)
	if err != nil {
		t.Fatal(err)
	}
	est, got := EstimateFlops(meta, 4), MeasureFlops(meta, 4)
	if est <= 0 || got <= 0 {
		t.Fatalf("estimate %g measure %g", est, got)
	}
	// the estimate also charges the embedding table, which does no matmul
	if r := got / est; r < 0.3 || r > 1.5 {
		t.Errorf("measured %g is far from estimated %g", got, est)
	}
	if MeasureFlops(meta, 8) != 2*got {
		t.Errorf("flops not linear in batch")
	}
}

func TestMonitorWindow(t *testing.T) {
	m := NewMonitor(2, 100, 2)
	if _, ok := m.Update(4, 128, 50, time.Second); ok {
		t.Fatalf("metrics before window filled")
	}
	m.Update(4, 128, 50, time.Second)
	got, ok := m.Update(4, 128, 50, time.Second)
	if !ok {
		t.Fatalf("no metrics after window")
	}
	if got.BatchesPerSec != 1 || got.SamplesPerSec != 8 || got.TokensPerSec != 256 {
		t.Errorf("metrics %+v", got)
	}
	if math.Abs(got.MFU-0.5) > 1e-12 {
		t.Errorf("mfu %g, want 0.5", got.MFU)
	}
	if len(got.Map()) != 5 {
		t.Errorf("map %v", got.Map())
	}
}
