package backend

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// admission bounds engine access. A request first reserves one of depth
// queue slots and then one of width engine slots; width is 1 unless the
// model was loaded with Parallel. Both waits are bounded by maxWait.
type admission struct {
	queueCh  chan struct{}
	sem      *semaphore.Weighted
	width    int
	maxWait  time.Duration
	inflight atomic.Int64
}

func newAdmission(depth, width int, maxWait time.Duration) *admission {
	if width < 1 {
		width = 1
	}
	if depth < width {
		depth = width
	}
	return &admission{
		queueCh: make(chan struct{}, depth),
		sem:     semaphore.NewWeighted(int64(width)),
		width:   width,
		maxWait: maxWait,
	}
}

// acquire reserves a queue slot and then an engine slot.
// Returns a release func to be deferred.
func (a *admission) acquire(ctx context.Context, op string) (func(), error) {
	timer := time.NewTimer(a.maxWait)
	defer timer.Stop()

	select {
	case a.queueCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, newError(KindCancelled, op, "cancelled while queued", ctx.Err())
	case <-timer.C:
		return func() {}, newError(KindBusy, op, "queue full", nil)
	}

	wctx, cancel := context.WithDeadline(ctx, time.Now().Add(a.maxWait))
	defer cancel()
	if err := a.sem.Acquire(wctx, 1); err != nil {
		<-a.queueCh
		if ctx.Err() != nil {
			return func() {}, newError(KindCancelled, op, "cancelled while queued", ctx.Err())
		}
		return func() {}, newError(KindBusy, op, "timed out waiting for engine", nil)
	}
	a.inflight.Add(1)
	var once atomic.Bool
	return func() {
		if once.Swap(true) {
			return
		}
		a.inflight.Add(-1)
		a.sem.Release(1)
		<-a.queueCh
	}, nil
}

func (a *admission) Inflight() int { return int(a.inflight.Load()) }

// Queued is the number of requests holding a queue slot but no engine slot.
func (a *admission) Queued() int {
	q := len(a.queueCh) - a.Inflight()
	if q < 0 {
		return 0
	}
	return q
}

func (a *admission) Depth() int { return cap(a.queueCh) }
