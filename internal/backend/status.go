package backend

import (
	"time"

	"modelrunner/internal/engine"
	"modelrunner/pkg/types"
)

// Status reports the lifecycle state and, when ready, load and memory
// figures. It never takes the handle lock.
func (s *Service) Status() *types.StatusResponse {
	state := s.lc.State()
	s.mu.RLock()
	out := &types.StatusResponse{
		State:         state,
		Model:         modelName(s.opts),
		Backend:       s.backend,
		Error:         s.lastErr,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		LoadsTotal:    s.loadsTotal.Load(),
	}
	eng, caps, adm, loadedAt := s.eng, s.caps, s.adm, s.loadedAt
	s.mu.RUnlock()

	if state != types.StateReady {
		return out
	}
	out.Capabilities = caps.Names()
	out.LoadedAtUnix = loadedAt.Unix()
	if adm != nil {
		out.Inflight = adm.Inflight()
		out.Queued = adm.Queued()
		out.MaxQueueDepth = adm.Depth()
		out.Busy = out.Inflight > 0
	}
	var pids []int
	if po, ok := eng.(engine.ProcessOwner); ok {
		pids = append(pids, po.PID())
	}
	mem, err := s.cfg.Sampler(pids...)
	if err != nil {
		s.log.Debug().Err(err).Msg("memory sample failed")
	} else {
		out.Memory = mem
	}
	if cpu, err := s.cfg.CPU(pids...); err != nil {
		s.log.Debug().Err(err).Msg("cpu sample failed")
	} else {
		out.CPUPercent = cpu
	}
	return out
}
