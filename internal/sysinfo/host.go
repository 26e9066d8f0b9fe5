package sysinfo

import (
	"github.com/jaypipes/ghw"
)

// HostSummary is the hardware context attached to report headers.
type HostSummary struct {
	CPUModel    string `json:"cpu_model,omitempty" yaml:"cpu_model,omitempty"`
	Cores       int    `json:"cores,omitempty" yaml:"cores,omitempty"`
	Threads     int    `json:"threads,omitempty" yaml:"threads,omitempty"`
	MemoryBytes uint64 `json:"memory_bytes,omitempty" yaml:"memory_bytes,omitempty"`
}

// Host collects a hardware summary. Fields stay zero when the probe fails;
// diagnostics must keep working on hosts ghw cannot inspect.
func Host() HostSummary {
	s := HostSummary{MemoryBytes: SystemMemory()}
	cpu, err := ghw.CPU()
	if err == nil && cpu != nil && len(cpu.Processors) > 0 {
		s.CPUModel = cpu.Processors[0].Model
		s.Cores = int(cpu.TotalCores)
		s.Threads = int(cpu.TotalThreads)
	}
	return s
}
