package device

import "github.com/klauspost/cpuid/v2"
import "github.com/pkg/errors"

// Info describes one device a worker can be placed on.
type Info struct {
	Index  int
	Kind   string
	Name   string
	Memory uint64
}

// Probe lists the accelerators, or the host CPU when there are none.
func Probe() []Info {
	if gpus := probeGPUs(); len(gpus) > 0 {
		return gpus
	}
	return []Info{{Kind: "cpu", Name: cpuid.CPU.BrandName}}
}

// Resolve returns the device of every one of devices workers. CPU workers
// share the host; accelerators are assigned one per worker.
func Resolve(devices int) ([]Info, error) {
	if devices <= 0 {
		return nil, errors.Errorf("device count %d must be positive", devices)
	}
	found := Probe()
	if found[0].Kind == "cpu" {
		out := make([]Info, devices)
		for i := range out {
			out[i] = found[0]
			out[i].Index = i
		}
		return out, nil
	}
	if devices > len(found) {
		return nil, errors.Errorf("%d devices requested, %d found", devices, len(found))
	}
	return found[:devices], nil
}

// PeakFlops estimates the peak floating point throughput of the host CPU,
// used to report model flops utilization.
func PeakFlops(p Precision) float64 {
	hz := float64(cpuid.CPU.Hz)
	if hz <= 0 {
		hz = 2e9
	}
	cores := max(cpuid.CPU.PhysicalCores, 1)
	lanes := 2.0
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F):
		lanes = 16
	case cpuid.CPU.Supports(cpuid.AVX2):
		lanes = 8
	}
	if p == BF16True || p == BF16Mixed {
		if cpuid.CPU.Supports(cpuid.AVX512BF16) {
			lanes *= 2
		}
	}
	fma := 1.0
	if cpuid.CPU.Supports(cpuid.FMA3) {
		fma = 2
	}
	return hz * float64(cores) * lanes * fma
}
