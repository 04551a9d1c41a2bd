// Package procstat reads resource usage of the running process.
package procstat

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// CPUTime returns the user plus system CPU time consumed by this process.
func CPUTime() (time.Duration, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, fmt.Errorf("procstat: %w", err)
	}
	times, err := p.Times()
	if err != nil {
		return 0, fmt.Errorf("procstat: cpu times: %w", err)
	}
	return time.Duration((times.User + times.System) * float64(time.Second)), nil
}
