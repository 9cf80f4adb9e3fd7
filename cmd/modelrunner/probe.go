package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"modelrunner/internal/grpcapi"
	"modelrunner/pkg/types"
)

type probeOptions struct {
	addr    string
	timeout time.Duration
	load    string
	file    string
	backend string
	prompt  string
	stream  bool
}

func newProbeCmd() *cobra.Command {
	o := &probeOptions{}
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check a running backend over gRPC",
		Example: "  modelrunner probe --addr 127.0.0.1:50051\n" +
			"  modelrunner probe --load tiny --backend echo --prompt \"hello there\" --stream",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			return runProbe(ctx, o, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", envStr("grpc-addr", "127.0.0.1:50051"), "Backend gRPC address")
	f.DurationVar(&o.timeout, "timeout", 30*time.Second, "Overall probe deadline")
	f.StringVar(&o.load, "load", "", "Load this model before probing")
	f.StringVar(&o.file, "model-file", "", "Model file for --load")
	f.StringVar(&o.backend, "backend", "", "Engine for --load")
	f.StringVar(&o.prompt, "prompt", "", "Run one prediction with this prompt")
	f.BoolVar(&o.stream, "stream", false, "Stream the prediction chunk by chunk")
	return cmd
}

func runProbe(ctx context.Context, o *probeOptions, out io.Writer) error {
	c, err := grpcapi.Dial(o.addr)
	if err != nil {
		return err
	}
	defer c.Close()

	serving, err := c.ServingStatus(ctx, grpcapi.ServiceName)
	if err != nil {
		return errors.Wrap(err, "health check")
	}
	fmt.Fprintf(out, "serving: %s\n", serving)
	if _, err := c.Health(ctx); err != nil {
		return errors.Wrap(err, "health")
	}

	if o.load != "" || o.file != "" {
		res, err := c.LoadModel(ctx, &types.ModelOptions{Model: o.load, ModelFile: o.file, Backend: o.backend})
		if err != nil {
			return errors.Wrap(err, "load model")
		}
		fmt.Fprintf(out, "load: %s\n", res.Message)
	}

	if o.prompt != "" {
		req := &types.PredictOptions{Prompt: o.prompt}
		if o.stream {
			n := 0
			err := c.PredictStream(ctx, req, func(r *types.Reply) error {
				n++
				fmt.Fprintf(out, "chunk %d: %q\n", n, r.Message)
				return nil
			})
			if err != nil {
				return errors.Wrap(err, "predict stream")
			}
		} else {
			rep, err := c.Predict(ctx, req)
			if err != nil {
				return errors.Wrap(err, "predict")
			}
			fmt.Fprintf(out, "reply: %s\n", rep.Message)
		}
	}

	st, err := c.Status(ctx)
	if err != nil {
		return errors.Wrap(err, "status")
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n", b)
	return nil
}
