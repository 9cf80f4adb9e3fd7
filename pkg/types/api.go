package types

// HealthMessage is the (empty) request payload of Health and Status.
type HealthMessage struct{}

// ModelOptions configures the single model loaded by a backend process.
// It is consumed once by LoadModel and never mutated afterwards.
type ModelOptions struct {
	// Logical model name as known to the orchestrator.
	// example: tinyllama-q4
	Model string `json:"model" example:"tinyllama-q4"`
	// Weights file, relative to ModelPath unless absolute.
	// example: tinyllama.Q4_K_M.gguf
	ModelFile string `json:"model_file,omitempty" example:"tinyllama.Q4_K_M.gguf"`
	// Directory holding model files. Defaults to the configured models dir.
	ModelPath string `json:"model_path,omitempty"`
	// Engine name (echo, llama, llama-server). Empty selects the configured default.
	// example: llama
	Backend string `json:"backend,omitempty" example:"llama"`
	// Context window in tokens.
	// example: 4096
	ContextSize int `json:"context_size,omitempty" example:"4096"`
	Seed        int `json:"seed,omitempty"`
	Threads     int `json:"threads,omitempty"`
	// Number of layers offloaded to the GPU.
	// example: 99
	GPULayers  int  `json:"gpu_layers,omitempty" example:"99"`
	F16        bool `json:"f16,omitempty"`
	MMap       bool `json:"mmap,omitempty"`
	Embeddings bool `json:"embeddings,omitempty"`
	// Parallel declares the engine reentrant; requests then run concurrently
	// up to the configured max_parallel instead of one at a time.
	Parallel bool `json:"parallel,omitempty"`
	// Free-form key:value engine options.
	// example: ["delay:10ms"]
	Options []string `json:"options,omitempty" example:"delay:10ms"`
}

// PredictOptions carries per-request inference parameters.
type PredictOptions struct {
	// Prompt text to complete or tokenize.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt,omitempty" example:"Write a haiku about the ocean."`
	// Text to embed; falls back to Prompt when empty.
	Embeddings string `json:"embeddings,omitempty"`
	// Base64 encoded images for multimodal models.
	Images []string `json:"images,omitempty"`
	// Maximum number of new tokens (0 lets the engine decide).
	// example: 128
	Tokens int `json:"tokens,omitempty" example:"128"`
	// example: 0.7
	Temperature float32 `json:"temperature,omitempty" example:"0.7"`
	// example: 0.9
	TopP float32 `json:"top_p,omitempty" example:"0.9"`
	// example: 40
	TopK int     `json:"top_k,omitempty" example:"40"`
	MinP float32 `json:"min_p,omitempty"`
	// Repeat penalty.
	// example: 1.1
	Penalty float32 `json:"penalty,omitempty" example:"1.1"`
	Seed    int     `json:"seed,omitempty"`
	Threads int     `json:"threads,omitempty"`
	// Generation stops when any of these sequences is produced.
	StopPrompts []string `json:"stop_prompts,omitempty"`
	IgnoreEOS   bool     `json:"ignore_eos,omitempty"`
	Echo        bool     `json:"echo,omitempty"`
}

// Reply is a unary generation result or one chunk of a stream.
type Reply struct {
	Message      []byte `json:"message"`
	Tokens       int    `json:"tokens,omitempty"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	// Seconds spent on prompt evaluation / token generation.
	TimingPromptProcessing float64 `json:"timing_prompt_processing,omitempty"`
	TimingTokenGeneration  float64 `json:"timing_token_generation,omitempty"`
}

// Result is a generic success/failure acknowledgement.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// EmbeddingResult holds one embedding vector.
type EmbeddingResult struct {
	Embeddings []float32 `json:"embeddings"`
}

// GenerateImageRequest asks the model to render an image to Dst.
type GenerateImageRequest struct {
	// example: a lighthouse at dusk, oil painting
	PositivePrompt string  `json:"positive_prompt" example:"a lighthouse at dusk, oil painting"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Width          int     `json:"width,omitempty" example:"512"`
	Height         int     `json:"height,omitempty" example:"512"`
	Step           int     `json:"step,omitempty" example:"20"`
	Seed           int     `json:"seed,omitempty"`
	CFGScale       float32 `json:"cfg_scale,omitempty"`
	// Optional source image for img2img.
	Src string `json:"src,omitempty"`
	// Output file path.
	// example: /tmp/out.png
	Dst string `json:"dst" example:"/tmp/out.png"`
}

// TranscriptRequest asks the model to transcribe the audio file at Dst.
type TranscriptRequest struct {
	// Path of the audio file to transcribe.
	// example: /tmp/audio.wav
	Dst       string `json:"dst" example:"/tmp/audio.wav"`
	Language  string `json:"language,omitempty" example:"en"`
	Translate bool   `json:"translate,omitempty"`
	Threads   int    `json:"threads,omitempty"`
}

// TranscriptSegment is one timed span of a transcription.
type TranscriptSegment struct {
	ID     int     `json:"id"`
	Start  int64   `json:"start"` // nanoseconds
	End    int64   `json:"end"`   // nanoseconds
	Text   string  `json:"text"`
	Tokens []int32 `json:"tokens,omitempty"`
}

// TranscriptResult is the full transcription of one request.
type TranscriptResult struct {
	Segments []TranscriptSegment `json:"segments"`
	Text     string              `json:"text"`
}

// TtsRequest asks the model to synthesize Text into the audio file Dst.
type TtsRequest struct {
	// example: Hello there.
	Text     string `json:"text" example:"Hello there."`
	Model    string `json:"model,omitempty"`
	Dst      string `json:"dst" example:"/tmp/speech.wav"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
}

// TokenizationResponse lists the token ids of a prompt.
type TokenizationResponse struct {
	Length int     `json:"length"`
	Tokens []int32 `json:"tokens"`
}

// MemoryUsageData reports process memory in bytes.
type MemoryUsageData struct {
	// example: 734003200
	Total     uint64            `json:"total" example:"734003200"`
	Breakdown map[string]uint64 `json:"breakdown,omitempty"`
	// Share of host RAM used by the process.
	Percent float32 `json:"percent,omitempty"`
}

// StatusResponse reports lifecycle and resource state.
type StatusResponse struct {
	// Lifecycle state: unloaded, loading, ready or failed.
	// example: ready
	State ModelState `json:"state" example:"ready"`
	// True while a request holds the engine.
	Busy         bool             `json:"busy"`
	Model        string           `json:"model,omitempty" example:"tinyllama-q4"`
	Backend      string           `json:"backend,omitempty" example:"llama"`
	Capabilities []string         `json:"capabilities,omitempty"`
	Error        string           `json:"error,omitempty"`
	Memory       *MemoryUsageData `json:"memory,omitempty"`
	// CPU use of the process and engine children, in percent of one core.
	// example: 12.5
	CPUPercent float64 `json:"cpu_percent,omitempty" example:"12.5"`
	// Requests currently running on the engine.
	Inflight int `json:"inflight"`
	// Requests waiting for the engine.
	Queued        int   `json:"queued"`
	MaxQueueDepth int   `json:"max_queue_depth"`
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	LoadedAtUnix  int64 `json:"loaded_at_unix,omitempty" example:"1700000000"`
	// Number of load attempts since process start.
	LoadsTotal uint64 `json:"loads_total" example:"1"`
}

// ErrorResponse is the JSON error payload of the HTTP gateway.
type ErrorResponse struct {
	// example: model not loaded
	Error string `json:"error" example:"model not loaded"`
	// Error kind (NotLoaded, Unsupported, ...).
	// example: NotLoaded
	Kind string `json:"kind,omitempty" example:"NotLoaded"`
	// HTTP status code.
	// example: 409
	Code int `json:"code" example:"409"`
}
