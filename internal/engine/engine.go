// Package engine defines the model runtimes a backend process can host and
// the capability interfaces the backend service dispatches to.
//
// An Engine declares its capabilities up front; Negotiate intersects that
// declaration with the interfaces the value actually implements, so the
// dispatch layer checks a bitmask instead of probing types per request.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"modelrunner/pkg/types"
)

// Capability is one inference modality. Values combine as a bitmask.
type Capability uint16

const (
	CapPredict Capability = 1 << iota
	CapPredictStream
	CapEmbedding
	CapImage
	CapTranscription
	CapTTS
	CapTokenize

	CapNone Capability = 0
	CapAll             = CapPredict | CapPredictStream | CapEmbedding | CapImage | CapTranscription | CapTTS | CapTokenize
)

var capNames = map[Capability]string{
	CapPredict:       "predict",
	CapPredictStream: "predict_stream",
	CapEmbedding:     "embedding",
	CapImage:         "generate_image",
	CapTranscription: "audio_transcription",
	CapTTS:           "tts",
	CapTokenize:      "tokenize_string",
}

// Has reports whether every bit of o is set in c.
func (c Capability) Has(o Capability) bool { return o != 0 && c&o == o }

// String returns the operation name of a single capability, or a
// comma-separated list for a combination.
func (c Capability) String() string {
	if n, ok := capNames[c]; ok {
		return n
	}
	return strings.Join(c.Names(), ",")
}

// Names lists the set capabilities in a stable order.
func (c Capability) Names() []string {
	out := make([]string, 0, len(capNames))
	for bit := CapPredict; bit <= CapTokenize; bit <<= 1 {
		if c&bit != 0 {
			out = append(out, capNames[bit])
		}
	}
	return out
}

// ParseCapabilities parses a comma-separated list of capability names.
func ParseCapabilities(csv string) (Capability, error) {
	var c Capability
	for _, part := range strings.Split(csv, ",") {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		found := false
		for bit, name := range capNames {
			if name == p {
				c |= bit
				found = true
				break
			}
		}
		if !found {
			known := make([]string, 0, len(capNames))
			for _, n := range capNames {
				known = append(known, n)
			}
			sort.Strings(known)
			return 0, fmt.Errorf("unknown capability %q (known: %s)", p, strings.Join(known, ", "))
		}
	}
	return c, nil
}

// LoadParams is what an engine receives at load time.
type LoadParams struct {
	Options types.ModelOptions
	// ModelFile is the resolved absolute weights path, empty when the
	// request named no file.
	ModelFile string
}

// Engine is the model handle. Load is called exactly once per value.
type Engine interface {
	Load(ctx context.Context, p LoadParams) error
	// Capabilities is only meaningful after a successful Load.
	Capabilities() Capability
	Close() error
}

type Predictor interface {
	Predict(ctx context.Context, opts *types.PredictOptions) (*types.Reply, error)
}

// Streamer emits generated text piece by piece. Implementations must return
// promptly once ctx is done or emit returns an error.
type Streamer interface {
	PredictStream(ctx context.Context, opts *types.PredictOptions, emit func(string) error) error
}

type Embedder interface {
	Embed(ctx context.Context, opts *types.PredictOptions) ([]float32, error)
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, req *types.GenerateImageRequest) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, req *types.TranscriptRequest) (*types.TranscriptResult, error)
}

type Synthesizer interface {
	TTS(ctx context.Context, req *types.TtsRequest) error
}

type Tokenizer interface {
	Tokenize(ctx context.Context, opts *types.PredictOptions) ([]int32, error)
}

// ProcessOwner is implemented by engines running the model in a child
// process, so memory reports can include it.
type ProcessOwner interface {
	PID() int
}

// Reentrant is implemented by engines that tolerate concurrent calls on one
// loaded handle. Engines without it are called one at a time.
type Reentrant interface {
	Reentrant() bool
}

// IsReentrant reports whether e may serve overlapping calls.
func IsReentrant(e Engine) bool {
	r, ok := e.(Reentrant)
	return ok && r.Reentrant()
}

// Negotiate returns the declared capabilities the engine really implements.
func Negotiate(e Engine) Capability {
	declared := e.Capabilities()
	var got Capability
	if _, ok := e.(Predictor); ok {
		got |= CapPredict
	}
	if _, ok := e.(Streamer); ok {
		got |= CapPredictStream
	}
	if _, ok := e.(Embedder); ok {
		got |= CapEmbedding
	}
	if _, ok := e.(ImageGenerator); ok {
		got |= CapImage
	}
	if _, ok := e.(Transcriber); ok {
		got |= CapTranscription
	}
	if _, ok := e.(Synthesizer); ok {
		got |= CapTTS
	}
	if _, ok := e.(Tokenizer); ok {
		got |= CapTokenize
	}
	return declared & got
}
