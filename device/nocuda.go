//go:build !cuda

package device

func probeGPUs() []Info {
	return nil
}

func supportsBF16() bool {
	return false
}
