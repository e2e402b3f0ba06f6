// Package device probes the compute devices of the host and implements the
// numeric precision modes of training.
package device

import "math"

import "github.com/klauspost/cpuid/v2"
import "github.com/pkg/errors"

// Precision is a numeric precision mode. Mixed modes keep float32 master
// weights; true modes keep the weights themselves in the reduced format.
type Precision string

const (
	BF16Mixed Precision = "bf16-mixed"
	BF16True  Precision = "bf16-true"
	F16Mixed  Precision = "16-mixed"
	F16True   Precision = "16-true"
	F32True   Precision = "32-true"
)

// ParsePrecision validates s. The empty string selects DefaultPrecision.
func ParsePrecision(s string) (Precision, error) {
	switch p := Precision(s); p {
	case "":
		return DefaultPrecision(), nil
	case BF16Mixed, BF16True, F16Mixed, F16True, F32True:
		return p, nil
	}
	return "", errors.Errorf("unknown precision %q", s)
}

// DefaultPrecision picks bf16-true where the hardware has bfloat16
// arithmetic and 32-true elsewhere.
func DefaultPrecision() Precision {
	if supportsBF16() || cpuid.CPU.Supports(cpuid.AVX512BF16) {
		return BF16True
	}
	return F32True
}

// bits returns the significand width the stored weights are rounded to.
func (p Precision) bits() int {
	switch p {
	case BF16True:
		return 8
	case F16True:
		return 11
	}
	return 24
}

// Round rounds v to the storage format of p, ties to even.
func (p Precision) Round(v float64) float64 {
	if p.bits() == 24 {
		return float64(float32(v))
	}
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	frac, exp := math.Frexp(v)
	scale := float64(int64(1) << p.bits())
	r := math.Ldexp(math.RoundToEven(frac*scale)/scale, exp)
	if p == F16True && math.Abs(r) > 65504 {
		return math.Copysign(math.Inf(1), r)
	}
	return r
}

// RoundAll rounds every element of data in place.
func (p Precision) RoundAll(data []float64) {
	for i, v := range data {
		data[i] = p.Round(v)
	}
}
