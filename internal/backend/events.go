package backend

// Event represents a backend lifecycle event.
// Minimal and stable: name + model name and optional fields via key/values.
type Event struct {
	Name   string
	Model  string
	Fields map[string]any
}

// Event names.
const (
	EventStateChanged = "state_changed"
	EventLoadStarted  = "load_started"
	EventLoadFailed   = "load_failed"
	EventModelReady   = "model_ready"
	EventEngineFatal  = "engine_fatal"
)

// EventPublisher receives events from the service. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// Publishers fans one event out to several publishers in order.
type Publishers []EventPublisher

func (ps Publishers) Publish(e Event) {
	for _, p := range ps {
		if p != nil {
			p.Publish(e)
		}
	}
}
