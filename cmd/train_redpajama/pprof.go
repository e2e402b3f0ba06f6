package main

import "runtime/pprof"
import "os"

// startProfile writes a CPU profile to the file named by PRETRAIN_CPUPROFILE,
// for profile guided builds. The returned func stops it.
func startProfile(logger interface{ Warn(any, ...any) }) (stop func()) {
	name := os.Getenv("PRETRAIN_CPUPROFILE")
	if name == "" {
		return func() {}
	}
	f, err := os.Create(name)
	if err != nil {
		logger.Warn("cpu profile disabled", "err", err)
		return func() {}
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		logger.Warn("cpu profile disabled", "err", err)
		f.Close()
		return func() {}
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}
}
