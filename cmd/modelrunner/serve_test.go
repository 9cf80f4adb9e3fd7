package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"modelrunner/internal/config"
	"modelrunner/internal/grpcapi"
	"modelrunner/pkg/types"
)

func TestApplyConfig_FlagsWin(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	body := "grpc_addr: 0.0.0.0:6000\nhttp_addr: :9000\nmax_wait: 2s\nmax_parallel: 8\ncors_allowed_origins: [a, b]\npreload:\n  model: tiny\n  backend: echo\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	o := &serveOptions{grpcAddr: "127.0.0.1:50051", httpAddr: ":7000", maxWait: 30 * time.Second, maxParallel: 4}
	explicit := func(name string) bool { return name == "http-addr" }
	if err := o.applyConfig(cfg, explicit); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if o.grpcAddr != "0.0.0.0:6000" || o.httpAddr != ":7000" {
		t.Fatalf("addrs: grpc=%s http=%s", o.grpcAddr, o.httpAddr)
	}
	if o.maxWait != 2*time.Second || o.maxParallel != 8 || o.corsOrigins != "a,b" {
		t.Fatalf("unexpected options: %+v", o)
	}
	o.preloadFile = "tiny.gguf"
	o.resolvePreload()
	if o.preload == nil || o.preload.Model != "tiny" || o.preload.Backend != "echo" || o.preload.ModelFile != "tiny.gguf" {
		t.Fatalf("preload: %+v", o.preload)
	}
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	if _, err := newLogger("chatty", io.Discard); err == nil {
		t.Fatal("expected error")
	}
}

func TestServeAndProbe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	type addrs struct{ grpc, http string }
	ready := make(chan addrs, 1)
	o := &serveOptions{
		grpcAddr:       "127.0.0.1:0",
		httpAddr:       "127.0.0.1:0",
		defaultBackend: "echo",
		maxQueueDepth:  4,
		maxWait:        time.Second,
		maxParallel:    2,
		streamBuffer:   4,
		maxPromptBytes: 1024,
		maxBodyBytes:   1 << 20,
		shutdownWait:   time.Second,
		logLevel:       "error",
		httpLogLevel:   "off",
		preload:        &types.ModelOptions{Model: "tiny"},
		ready:          func(g, h string) { ready <- addrs{g, h} },
	}
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, o, io.Discard) }()

	var a addrs
	select {
	case a = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("servers did not start")
	}

	c, err := grpcapi.Dial(a.grpc)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	deadline := time.Now().Add(5 * time.Second)
	for {
		st, err := c.ServingStatus(ctx, grpcapi.ServiceName)
		if err == nil && st == healthpb.HealthCheckResponse_SERVING {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("model never became ready")
		}
		time.Sleep(20 * time.Millisecond)
	}
	resp, err := http.Get("http://" + a.http + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status=%d", resp.StatusCode)
	}

	pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pcancel()
	var out bytes.Buffer
	if err := runProbe(pctx, &probeOptions{addr: a.grpc, prompt: "hello world", stream: true}, &out); err != nil {
		t.Fatalf("probe: %v\n%s", err, out.String())
	}
	for _, want := range []string{"serving: SERVING", `chunk 2: "world"`, `"state": "ready"`, `"model": "tiny"`} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("probe output missing %q:\n%s", want, out.String())
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
	}
}
