package backend

import (
	"errors"
	"testing"

	"modelrunner/pkg/types"
)

func TestStatus_Unloaded(t *testing.T) {
	s := newTestService(t, newFakeEngine())
	st := s.Status()
	if st.State != types.StateUnloaded || st.Busy || st.Memory != nil || st.CPUPercent != 0 || len(st.Capabilities) != 0 {
		t.Fatalf("unexpected: %+v", st)
	}
	if st.LoadsTotal != 0 || st.LoadedAtUnix != 0 {
		t.Fatalf("counters: %+v", st)
	}
}

func TestStatus_ReadyReportsMemoryAndCapabilities(t *testing.T) {
	s := newTestService(t, newFakeEngine())
	loadFake(t, s, func(o *types.ModelOptions) { o.Backend = "fake" })
	st := s.Status()
	if st.State != types.StateReady || st.Backend != "fake" || st.Model != "m1" {
		t.Fatalf("identity: %+v", st)
	}
	if st.Memory == nil || st.Memory.Total != 42 {
		t.Fatalf("memory: %+v", st.Memory)
	}
	if st.CPUPercent != 12.5 {
		t.Fatalf("cpu: %v", st.CPUPercent)
	}
	if len(st.Capabilities) != 7 || st.LoadedAtUnix == 0 || st.LoadsTotal != 1 {
		t.Fatalf("ready fields: %+v", st)
	}
	if st.Busy || st.Inflight != 0 {
		t.Fatalf("idle model reported busy: %+v", st)
	}
}

func TestStatus_SamplerErrorOmitsMemory(t *testing.T) {
	s := newTestService(t, newFakeEngine(), func(c *Config) {
		c.Sampler = func(...int) (*types.MemoryUsageData, error) { return nil, errors.New("no procfs") }
	})
	loadFake(t, s)
	if st := s.Status(); st.State != types.StateReady || st.Memory != nil {
		t.Fatalf("unexpected: %+v", st)
	}
}

func TestProcessSampler_Self(t *testing.T) {
	mem, err := ProcessSampler()
	if err != nil {
		t.Skipf("process sampling unavailable: %v", err)
	}
	if mem.Total == 0 || mem.Breakdown["rss"] != mem.Total {
		t.Fatalf("unexpected sample: %+v", mem)
	}
}

func TestStatus_CPUSamplerErrorOmitsCPU(t *testing.T) {
	s := newTestService(t, newFakeEngine(), func(c *Config) {
		c.CPU = func(...int) (float64, error) { return 0, errors.New("no procfs") }
	})
	loadFake(t, s)
	if st := s.Status(); st.CPUPercent != 0 || st.Memory == nil {
		t.Fatalf("unexpected: %+v", st)
	}
}

func TestProcessCPUSampler_Self(t *testing.T) {
	pct, err := ProcessCPUSampler()
	if err != nil {
		t.Skipf("process sampling unavailable: %v", err)
	}
	if pct < 0 {
		t.Fatalf("negative cpu percent %v", pct)
	}
}
