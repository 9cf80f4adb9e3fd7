package backend

import (
	"os"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"

	"modelrunner/pkg/types"
)

// MemorySampler reports memory held by the serving process. pids lists
// extra processes owned by the loaded engine; their RSS is added to the
// total and reported under its own breakdown key.
type MemorySampler func(pids ...int) (*types.MemoryUsageData, error)

// ProcessSampler samples this process and any engine child processes with
// gopsutil.
func ProcessSampler(pids ...int) (*types.MemoryUsageData, error) {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, errors.Wrap(err, "lookup self process")
	}
	mi, err := self.MemoryInfo()
	if err != nil {
		return nil, errors.Wrap(err, "memory info")
	}
	pct, err := self.MemoryPercent()
	if err != nil {
		return nil, errors.Wrap(err, "memory percent")
	}
	out := &types.MemoryUsageData{
		Total:     mi.RSS,
		Percent:   pct,
		Breakdown: map[string]uint64{"rss": mi.RSS, "vms": mi.VMS},
	}
	for _, pid := range pids {
		if pid <= 0 {
			continue
		}
		child, err := process.NewProcess(int32(pid))
		if err != nil {
			return nil, errors.Wrapf(err, "lookup engine process %d", pid)
		}
		cmi, err := child.MemoryInfo()
		if err != nil {
			return nil, errors.Wrapf(err, "engine process %d memory info", pid)
		}
		out.Total += cmi.RSS
		out.Breakdown["engine_rss"] += cmi.RSS
		if cp, err := child.MemoryPercent(); err == nil {
			out.Percent += cp
		}
	}
	return out, nil
}

// CPUSampler reports CPU use of the serving process and the given engine
// processes, in percent of one core.
type CPUSampler func(pids ...int) (float64, error)

// ProcessCPUSampler sums gopsutil CPU percentages of this process and pids.
func ProcessCPUSampler(pids ...int) (float64, error) {
	all := append([]int{os.Getpid()}, pids...)
	var total float64
	for _, pid := range all {
		if pid <= 0 {
			continue
		}
		p, err := process.NewProcess(int32(pid))
		if err != nil {
			return 0, errors.Wrapf(err, "lookup process %d", pid)
		}
		pct, err := p.CPUPercent()
		if err != nil {
			return 0, errors.Wrapf(err, "process %d cpu percent", pid)
		}
		total += pct
	}
	return total, nil
}
