package engine

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"modelrunner/pkg/types"
)

// EchoBackend is the name of the deterministic debug engine.
const EchoBackend = "echo"

const (
	echoDefaultDims    = 16
	echoMaxImageSide   = 256
	echoSampleRate     = 16000
	echoSecondsPerRune = 0.05
)

// Echo is a pure-Go engine implementing every capability deterministically.
// Generation echoes the prompt word by word. It exists for smoke tests and
// orchestrator wiring checks, not for real inference.
//
// Options (ModelOptions.Options):
//
//	delay:<duration>      pause between streamed chunks and before unary replies
//	capabilities:<csv>    restrict the declared capabilities
//	fail_after:<n>        streaming fails after n chunks
//	fatal_after:<n>       like fail_after, but the error is fatal to the engine
//	dims:<n>              embedding dimensions
type Echo struct {
	log        zerolog.Logger
	model      string
	caps       Capability
	delay      time.Duration
	failAfter  int
	fatalAfter int
	dims       int
}

// NewEcho returns an unloaded echo engine.
func NewEcho(cfg Config) *Echo {
	return &Echo{log: cfg.Logger.With().Str("engine", EchoBackend).Logger()}
}

func (e *Echo) Load(ctx context.Context, p LoadParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ModelFile != "" {
		if _, err := os.Stat(p.ModelFile); err != nil {
			return fmt.Errorf("model file: %w", err)
		}
	}
	opts := ParseOptions(p.Options.Options)
	e.model = p.Options.Model
	e.caps = CapAll
	e.dims = echoDefaultDims
	if v, ok := opts["capabilities"]; ok {
		c, err := ParseCapabilities(strings.ReplaceAll(v, ";", ","))
		if err != nil {
			return err
		}
		e.caps = c
	}
	if v, ok := opts["delay"]; ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("delay option: %w", err)
		}
		e.delay = d
	}
	for key, dst := range map[string]*int{"fail_after": &e.failAfter, "fatal_after": &e.fatalAfter, "dims": &e.dims} {
		if v, ok := opts[key]; ok {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("%s option: invalid value %q", key, v)
			}
			*dst = n
		}
	}
	if e.dims == 0 {
		e.dims = echoDefaultDims
	}
	e.log.Debug().Str("model", e.model).Strs("capabilities", e.caps.Names()).Msg("echo engine loaded")
	return nil
}

func (e *Echo) Capabilities() Capability { return e.caps }

func (e *Echo) Close() error { return nil }

// Reentrant is true: nothing is mutated after Load.
func (e *Echo) Reentrant() bool { return true }

func (e *Echo) wait(ctx context.Context) error {
	if e.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(e.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pieces splits a prompt into the chunks streaming would emit, honouring
// the max token limit.
func (e *Echo) pieces(opts *types.PredictOptions) []string {
	words := strings.Fields(opts.Prompt)
	if opts.Tokens > 0 && len(words) > opts.Tokens {
		words = words[:opts.Tokens]
	}
	out := make([]string, len(words))
	for i, w := range words {
		if i < len(words)-1 {
			w += " "
		}
		out[i] = w
	}
	return out
}

func (e *Echo) Predict(ctx context.Context, opts *types.PredictOptions) (*types.Reply, error) {
	start := time.Now()
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	p := e.pieces(opts)
	return &types.Reply{
		Message:               []byte(strings.Join(p, "")),
		Tokens:                len(p),
		PromptTokens:          len(strings.Fields(opts.Prompt)),
		TimingTokenGeneration: time.Since(start).Seconds(),
	}, nil
}

func (e *Echo) PredictStream(ctx context.Context, opts *types.PredictOptions, emit func(string) error) error {
	for i, piece := range e.pieces(opts) {
		if e.fatalAfter > 0 && i >= e.fatalAfter {
			return fmt.Errorf("%w: echo injected fatal error after %d chunks", ErrFatal, i)
		}
		if e.failAfter > 0 && i >= e.failAfter {
			return fmt.Errorf("echo injected failure after %d chunks", i)
		}
		if i > 0 {
			if err := e.wait(ctx); err != nil {
				return err
			}
		}
		if err := emit(piece); err != nil {
			return err
		}
	}
	return nil
}

func (e *Echo) Embed(ctx context.Context, opts *types.PredictOptions) ([]float32, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	text := opts.Embeddings
	if text == "" {
		text = opts.Prompt
	}
	vec := make([]float32, e.dims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := hash32(w)
		sign := float32(1)
		if h&1 == 1 {
			sign = -1
		}
		vec[int(h>>1)%e.dims] += sign
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

func (e *Echo) Tokenize(ctx context.Context, opts *types.PredictOptions) ([]int32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := strings.Fields(opts.Prompt)
	out := make([]int32, len(words))
	for i, w := range words {
		out[i] = int32(hash32(w) % 32000)
	}
	return out, nil
}

// GenerateImage renders a flat PNG whose colour derives from the prompt.
func (e *Echo) GenerateImage(ctx context.Context, req *types.GenerateImageRequest) error {
	if err := e.wait(ctx); err != nil {
		return err
	}
	w, h := clampSide(req.Width), clampSide(req.Height)
	sum := hash32(req.PositivePrompt)
	c := color.RGBA{R: uint8(sum), G: uint8(sum >> 8), B: uint8(sum >> 16), A: 0xff}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(req.Dst)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Transcribe treats the input file as text; every non-empty line becomes a
// one-second segment.
func (e *Echo) Transcribe(ctx context.Context, req *types.TranscriptRequest) (*types.TranscriptResult, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	f, err := os.Open(req.Dst)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	res := &types.TranscriptResult{}
	var all []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !utf8.ValidString(line) {
			return nil, errors.New("echo can only transcribe UTF-8 text files")
		}
		id := len(res.Segments)
		res.Segments = append(res.Segments, types.TranscriptSegment{
			ID:    id,
			Start: int64(id) * int64(time.Second),
			End:   int64(id+1) * int64(time.Second),
			Text:  line,
		})
		all = append(all, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	res.Text = strings.Join(all, " ")
	return res, nil
}

// TTS writes a silent 16-bit mono WAV whose length follows the text length.
func (e *Echo) TTS(ctx context.Context, req *types.TtsRequest) error {
	if err := e.wait(ctx); err != nil {
		return err
	}
	samples := int(float64(utf8.RuneCountInString(req.Text)) * echoSecondsPerRune * echoSampleRate)
	f, err := os.Create(req.Dst)
	if err != nil {
		return err
	}
	if err := writeSilentWAV(f, samples); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeSilentWAV(f *os.File, samples int) error {
	dataLen := uint32(samples * 2)
	hdr := []any{
		[4]byte{'R', 'I', 'F', 'F'}, 36 + dataLen, [4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '}, uint32(16), uint16(1), uint16(1),
		uint32(echoSampleRate), uint32(echoSampleRate * 2), uint16(2), uint16(16),
		[4]byte{'d', 'a', 't', 'a'}, dataLen,
	}
	w := bufio.NewWriter(f)
	for _, v := range hdr {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if _, err := w.Write(make([]byte, dataLen)); err != nil {
		return err
	}
	return w.Flush()
}

func clampSide(n int) int {
	switch {
	case n <= 0:
		return 64
	case n > echoMaxImageSide:
		return echoMaxImageSide
	}
	return n
}

func hash32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
