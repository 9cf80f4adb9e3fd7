// Package backend implements the single-model backend service: the model
// lifecycle state machine, capability dispatch, the streaming generation
// protocol and the concurrency discipline around the one model handle.
// It is structured into small files by concern:
//
//   - service.go: Service type, constructor, Health, Close.
//   - config.go: Config and package defaults.
//   - lifecycle.go: unloaded/loading/ready/failed state machine (looplab/fsm).
//   - load.go: LoadModel and engine/model file resolution.
//   - admission.go: engine slot (serialized FIFO or bounded parallel).
//   - dispatch.go: unary inference operations.
//   - stream.go: PredictStream and its bounded chunk channel.
//   - status.go: Status reporting.
//   - models.go: listing of model files under the models dir.
//   - sampler.go: process memory sampling (gopsutil).
//   - errors.go: error kinds and helpers (KindOf, IsNotLoaded, ...).
//   - validate.go: request validation.
//   - events.go, eventpub_memory.go: lifecycle event publishing.
//   - metrics.go: Prometheus collectors.
//
// Engines live in internal/engine; this package only sees them through the
// capability interfaces negotiated at load time. Transports (gRPC, HTTP)
// should use the exported methods only.
package backend
