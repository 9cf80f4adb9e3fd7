package backend

import (
	"context"

	"github.com/looplab/fsm"

	"modelrunner/pkg/types"
)

// Lifecycle events.
const (
	evLoad   = "load"
	evLoaded = "loaded"
	evFail   = "fail"
)

// lifecycle wraps the model state machine:
//
//	unloaded --load--> loading --loaded--> ready
//	loading  --fail--> failed
//	ready    --fail--> failed
//	failed   --load--> loading
//
// There is no way back to unloaded. The fsm serializes transitions, so
// two racing loads cannot both leave unloaded.
type lifecycle struct {
	fsm *fsm.FSM
}

func newLifecycle(onEnter func(from, to types.ModelState)) *lifecycle {
	unloaded, loading := string(types.StateUnloaded), string(types.StateLoading)
	ready, failed := string(types.StateReady), string(types.StateFailed)
	return &lifecycle{fsm: fsm.NewFSM(
		unloaded,
		fsm.Events{
			{Name: evLoad, Src: []string{unloaded, failed}, Dst: loading},
			{Name: evLoaded, Src: []string{loading}, Dst: ready},
			{Name: evFail, Src: []string{loading, ready}, Dst: failed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				onEnter(types.ModelState(e.Src), types.ModelState(e.Dst))
			},
		},
	)}
}

func (l *lifecycle) State() types.ModelState { return types.ModelState(l.fsm.Current()) }

// fire runs a transition. Transitions are never tied to a request context:
// a cancelled caller must not leave the machine half way.
func (l *lifecycle) fire(event string) error {
	return l.fsm.Event(context.Background(), event)
}

// fail moves to failed when the current state allows it.
func (l *lifecycle) fail() bool {
	return l.fire(evFail) == nil
}
