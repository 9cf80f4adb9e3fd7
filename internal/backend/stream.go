package backend

import (
	"context"
	"time"

	"github.com/google/uuid"

	"modelrunner/internal/engine"
	"modelrunner/pkg/types"
)

// PredictStream generates text and hands each chunk to send, in order.
//
// The engine runs in its own goroutine and feeds a channel of
// Config.StreamBuffer chunks; when the caller's send is slower than the
// engine, the engine blocks. The engine context is cancelled when ctx is
// done or send fails, and no chunk is sent after that. The returned error,
// if any, is the only error of the stream.
func (s *Service) PredictStream(ctx context.Context, opts *types.PredictOptions, send func(*types.Reply) error) (err error) {
	const op = OpPredictStream
	start := time.Now()
	defer func() { observe(op, start, err) }()

	h, leave, err := s.enter(op)
	if err != nil {
		return err
	}
	defer leave()
	if err := s.validatePredict(op, opts); err != nil {
		return err
	}
	if !h.caps.Has(engine.CapPredictStream) {
		return errUnsupported(op, engine.CapPredictStream.String())
	}
	release, err := h.adm.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer release()

	id := uuid.NewString()
	log := s.log.With().Str("stream", id).Logger()
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan *types.Reply, s.cfg.StreamBuffer)
	errc := make(chan error, 1)
	go func() {
		defer close(chunks)
		errc <- guard(func() error {
			return h.eng.(engine.Streamer).PredictStream(sctx, opts, func(piece string) error {
				if err := sctx.Err(); err != nil {
					return err
				}
				select {
				case chunks <- &types.Reply{Message: []byte(piece), Tokens: 1}:
					return nil
				case <-sctx.Done():
					return sctx.Err()
				}
			})
		})
	}()

	var sendErr error
	n := 0
	for c := range chunks {
		if sendErr != nil || ctx.Err() != nil {
			// drain until the producer observes cancellation
			continue
		}
		if err := send(c); err != nil {
			sendErr = err
			cancel()
			continue
		}
		n++
		streamChunksTotal.Inc()
	}
	perr := <-errc
	log.Debug().Int("chunks", n).Dur("dur", time.Since(start)).Msg("stream finished")

	switch {
	case sendErr != nil:
		return newError(KindCancelled, op, "stream consumer failed", sendErr)
	case ctx.Err() != nil:
		return newError(KindCancelled, op, "", ctx.Err())
	}
	return s.classify(ctx, op, perr)
}
