package sandbox

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// watchInterval is how often the limiter samples resource usage during
// an execution. It bounds how far past a limit a script can run.
const watchInterval = time.Millisecond

// limiter holds the CPU and memory ceilings for one Runtime. Zero means
// unlimited, never "fail immediately". Limits are mutable at any time
// and are re-read on every sample, so adjustments apply to in-flight
// executions as well as subsequent ones.
type limiter struct {
	mu          sync.Mutex
	cpuSeconds  float64
	memoryBytes int64
}

func (l *limiter) setCPU(seconds float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	l.cpuSeconds = seconds
}

func (l *limiter) setMemory(bytes int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bytes < 0 {
		bytes = 0
	}
	l.memoryBytes = bytes
}

func (l *limiter) snapshot() (cpuSeconds float64, memoryBytes int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cpuSeconds, l.memoryBytes
}

// watch samples consumed CPU time and heap growth until stop is closed,
// cancelling the execution context with a typed cause when a ceiling is
// crossed. CPU accounting uses rusage, not wall time: a suspended
// process accrues nothing, a busy loop is caught within a few samples.
// Memory accounting is the heap delta against the start of the run, so
// allocations made before the script ran do not count against it. Both
// samples are process-wide: concurrent runtimes (or other host work)
// allocating in the same process count toward whichever limiter is
// watching, which the one-runtime-per-caller ownership model accepts
// as an over-approximation in the script's disfavor.
func (l *limiter) watch(cancel context.CancelCauseFunc, stop <-chan struct{}) {
	baseCPU := processCPUSeconds()
	baseHeap := heapInUse()

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cpuLimit, memLimit := l.snapshot()

			if cpuLimit > 0 && processCPUSeconds()-baseCPU > cpuLimit {
				cancel(errCPUExceeded)
				return
			}

			if memLimit > 0 {
				if used := heapInUse() - baseHeap; used > memLimit {
					cancel(errMemoryExceeded)
					return
				}
			}
		}
	}
}

// processCPUSeconds returns user+system CPU time consumed by the
// process so far.
func processCPUSeconds() float64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	return (time.Duration(ru.Utime.Nano()) + time.Duration(ru.Stime.Nano())).Seconds()
}

// heapInUse returns the current live heap size.
func heapInUse() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.HeapAlloc)
}
