//go:build linux

// Package affinity pins worker goroutines' underlying OS threads to
// specific CPU cores, reducing cache-line migration across the integrator's
// persistent worker pool (spec.md section 5).
package affinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the calling goroutine to its current OS thread and restricts
// that thread to a single CPU core. It must be called from the goroutine
// that will run the worker loop, before any blocking work begins.
func Pin(cpu int) error {
	if cpu < 0 {
		return fmt.Errorf("affinity: cpu must be non-negative, got %d", cpu)
	}
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity cpu %d: %w", cpu, err)
	}
	return nil
}

// Available returns the number of CPUs the calling thread is currently
// allowed to run on, per sched_getaffinity.
func Available() (int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return 0, fmt.Errorf("affinity: sched_getaffinity: %w", err)
	}
	return set.Count(), nil
}
