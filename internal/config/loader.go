package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"modelrunner/pkg/types"
)

// Config holds runtime parameters for the backend process.
// Zero values mean "unspecified" and will be replaced by flag defaults in main.
type Config struct {
	GRPCAddr       string `json:"grpc_addr" yaml:"grpc_addr" toml:"grpc_addr"`
	HTTPAddr       string `json:"http_addr" yaml:"http_addr" toml:"http_addr"`
	ModelsDir      string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DefaultBackend string `json:"default_backend" yaml:"default_backend" toml:"default_backend"`

	MaxQueueDepth  int    `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWait        string `json:"max_wait" yaml:"max_wait" toml:"max_wait"`
	MaxParallel    int    `json:"max_parallel" yaml:"max_parallel" toml:"max_parallel"`
	StreamBuffer   int    `json:"stream_buffer" yaml:"stream_buffer" toml:"stream_buffer"`
	MaxPromptBytes int    `json:"max_prompt_bytes" yaml:"max_prompt_bytes" toml:"max_prompt_bytes"`
	MaxBodyBytes   int64  `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	LoadTimeout    string `json:"load_timeout" yaml:"load_timeout" toml:"load_timeout"`
	RequestTimeout string `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`

	LogLevel     string `json:"log_level" yaml:"log_level" toml:"log_level"`
	HTTPLogLevel string `json:"http_log_level" yaml:"http_log_level" toml:"http_log_level"`

	LlamaServerBin  string `json:"llama_server_bin" yaml:"llama_server_bin" toml:"llama_server_bin"`
	LlamaServerHost string `json:"llama_server_host" yaml:"llama_server_host" toml:"llama_server_host"`

	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	CORSAllowedMethods []string `json:"cors_allowed_methods" yaml:"cors_allowed_methods" toml:"cors_allowed_methods"`
	CORSAllowedHeaders []string `json:"cors_allowed_headers" yaml:"cors_allowed_headers" toml:"cors_allowed_headers"`

	// Preload, when set, is loaded right after startup.
	Preload *Preload `json:"preload" yaml:"preload" toml:"preload"`
}

// Preload names the model loaded at startup.
type Preload struct {
	Model       string   `json:"model" yaml:"model" toml:"model"`
	ModelFile   string   `json:"model_file" yaml:"model_file" toml:"model_file"`
	Backend     string   `json:"backend" yaml:"backend" toml:"backend"`
	ContextSize int      `json:"context_size" yaml:"context_size" toml:"context_size"`
	GPULayers   int      `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	Threads     int      `json:"threads" yaml:"threads" toml:"threads"`
	Embeddings  bool     `json:"embeddings" yaml:"embeddings" toml:"embeddings"`
	Parallel    bool     `json:"parallel" yaml:"parallel" toml:"parallel"`
	Options     []string `json:"options" yaml:"options" toml:"options"`
}

// ModelOptions converts the preload section into a load request.
func (p *Preload) ModelOptions() *types.ModelOptions {
	if p == nil {
		return nil
	}
	return &types.ModelOptions{
		Model:       p.Model,
		ModelFile:   p.ModelFile,
		Backend:     p.Backend,
		ContextSize: p.ContextSize,
		GPULayers:   p.GPULayers,
		Threads:     p.Threads,
		Embeddings:  p.Embeddings,
		Parallel:    p.Parallel,
		Options:     append([]string(nil), p.Options...),
	}
}

// Durations parses the duration-valued keys. Empty values parse as zero.
func (c Config) Durations() (maxWait, loadTimeout, requestTimeout time.Duration, err error) {
	if maxWait, err = parseDuration("max_wait", c.MaxWait); err != nil {
		return
	}
	if loadTimeout, err = parseDuration("load_timeout", c.LoadTimeout); err != nil {
		return
	}
	requestTimeout, err = parseDuration("request_timeout", c.RequestTimeout)
	return
}

func parseDuration(key, v string) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", key, v)
	}
	return d, nil
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if _, _, _, err := cfg.Durations(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
