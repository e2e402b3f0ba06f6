//go:build cuda

package device

import "gorgonia.org/cu"

func probeGPUs() (out []Info) {
	devices, err := cu.NumDevices()
	if err != nil {
		return nil
	}
	for d := 0; d < devices; d++ {
		name, _ := cu.Device(d).Name()
		mem, _ := cu.Device(d).TotalMem()
		out = append(out, Info{Index: d, Kind: "cuda", Name: name, Memory: uint64(mem)})
	}
	return
}

// supportsBF16 reports compute capability 8.0 or newer on the first device.
func supportsBF16() bool {
	devices, err := cu.NumDevices()
	if err != nil || devices == 0 {
		return false
	}
	maj, err := cu.Device(0).Attribute(cu.ComputeCapabilityMajor)
	return err == nil && maj >= 8
}
