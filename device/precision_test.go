package device

import "testing"

func TestParsePrecision(t *testing.T) {
	for _, s := range []string{"bf16-mixed", "bf16-true", "16-mixed", "16-true", "32-true"} {
		if p, err := ParsePrecision(s); err != nil || string(p) != s {
			t.Errorf("%s: %v %v", s, p, err)
		}
	}
	if p, err := ParsePrecision(""); err != nil || (p != BF16True && p != F32True) {
		t.Errorf("default precision %q %v", p, err)
	}
	if _, err := ParsePrecision("8-true"); err == nil {
		t.Errorf("8-true accepted")
	}
}

func TestRound(t *testing.T) {
	if got := BF16True.Round(1 + 1.0/512); got != 1 {
		t.Errorf("bf16 kept %v", got)
	}
	if got := BF16True.Round(1 + 1.0/64); got != 1+1.0/64 {
		t.Errorf("bf16 lost representable %v", got)
	}
	if got := F16True.Round(1 + 1.0/1024); got != 1+1.0/1024 {
		t.Errorf("f16 lost representable %v", got)
	}
	if got := F16True.Round(1e6); got <= 65504 {
		t.Errorf("f16 did not overflow: %v", got)
	}
	if got := F32True.Round(0.1); got != float64(float32(0.1)) {
		t.Errorf("f32 round %v", got)
	}
	data := []float64{0, -3.14159}
	BF16True.RoundAll(data)
	if data[0] != 0 || data[1] != -3.140625 {
		t.Errorf("round all %v", data)
	}
}

func TestResolve(t *testing.T) {
	if _, err := Resolve(0); err == nil {
		t.Errorf("zero devices accepted")
	}
	got, err := Resolve(1)
	if err != nil || len(got) != 1 {
		t.Fatalf("one device: %v %v", got, err)
	}
	if PeakFlops(F32True) <= 0 {
		t.Errorf("peak flops not positive")
	}
}
