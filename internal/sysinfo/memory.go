// Package sysinfo wraps the raw OS services the diagnostics core depends on:
// memory readings, wall-clock time and external command execution. Everything
// here is best-effort; failures surface as zero values, never as panics, so
// the failure path that calls into this package cannot acquire new ways to
// fail.
package sysinfo

import (
	"os"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// MemoryUsage returns the resident set size of the current process in bytes,
// or 0 when it cannot be read.
func MemoryUsage() uint64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}

// SystemMemory returns the total physical memory of the host in bytes, or 0
// when it cannot be read.
func SystemMemory() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm == nil {
		return 0
	}
	return vm.Total
}
