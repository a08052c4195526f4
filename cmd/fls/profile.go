package main

import (
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/ajitpratap0/fls/pkg/flserrors"
)

// profiler writes pprof CPU and heap profiles around one command.
type profiler struct {
	cpuFile string
	memFile string
	cpu     *os.File
}

// start begins CPU profiling when requested.
func (p *profiler) start() error {
	if p.cpuFile == "" {
		return nil
	}
	f, err := os.Create(p.cpuFile)
	if err != nil {
		return flserrors.Annotate(err, "cpuprofile", p.cpuFile)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return flserrors.Wrap(err, flserrors.ErrorTypeInternal, "failed to start CPU profile").WithOp("cpuprofile", p.cpuFile)
	}
	p.cpu = f
	return nil
}

// stop ends CPU profiling and writes the heap profile.
func (p *profiler) stop() error {
	if p.cpu != nil {
		pprof.StopCPUProfile()
		err := p.cpu.Close()
		p.cpu = nil
		if err != nil {
			return flserrors.Annotate(err, "cpuprofile", p.cpuFile)
		}
	}
	if p.memFile == "" {
		return nil
	}
	f, err := os.Create(p.memFile)
	if err != nil {
		return flserrors.Annotate(err, "memprofile", p.memFile)
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return flserrors.Wrap(err, flserrors.ErrorTypeInternal, "failed to write heap profile").WithOp("memprofile", p.memFile)
	}
	return nil
}
