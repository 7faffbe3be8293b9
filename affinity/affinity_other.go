//go:build !linux

package affinity

import "runtime"

// Pin is a no-op on platforms without sched_setaffinity; it still locks the
// calling goroutine to its OS thread so worker behavior stays consistent.
func Pin(cpu int) error {
	runtime.LockOSThread()
	return nil
}

// Available returns runtime.NumCPU on platforms without CPU-set queries.
func Available() (int, error) {
	return runtime.NumCPU(), nil
}
