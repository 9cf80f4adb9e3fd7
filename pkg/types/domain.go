package types

// ModelState is the lifecycle state of the model handle.
type ModelState string

const (
	StateUnloaded ModelState = "unloaded"
	StateLoading  ModelState = "loading"
	StateReady    ModelState = "ready"
	StateFailed   ModelState = "failed"
)

// Model describes a model file discoverable under the models directory.
type Model struct {
	// Stable identifier (file name).
	// example: tinyllama.Q4_K_M.gguf
	ID string `json:"id" example:"tinyllama.Q4_K_M.gguf"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/tinyllama.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/tinyllama.Q4_K_M.gguf"`
	// File size in bytes.
	SizeBytes int64 `json:"size_bytes"`
}
