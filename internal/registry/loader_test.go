package registry

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoadDir_FiltersModelFiles(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"a.gguf",
		"b.GGUF", // case-insensitive
		"c.bin",
		"not-model.txt",
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("xx"), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.gguf"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	models, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if len(models) != 3 {
		t.Fatalf("expected 3 models, got %d: %+v", len(models), models)
	}
	if models[0].ID != "a.gguf" || models[1].ID != "b.GGUF" || models[2].ID != "c.bin" {
		t.Fatalf("unexpected order: %+v", models)
	}
	if models[0].SizeBytes != 2 || !filepath.IsAbs(models[0].Path) {
		t.Fatalf("unexpected metadata: %+v", models[0])
	}
}

func TestLoadDir_ExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "modelrunner-registry-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	if err := os.WriteFile(filepath.Join(hTmp, "x.gguf"), []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var tildePath string
	if runtime.GOOS == "windows" {
		tildePath = filepath.Join("~", filepath.Base(hTmp))
	} else {
		tildePath = "~/" + filepath.Base(hTmp)
	}
	models, err := LoadDir(tildePath)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "x.gguf" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestLoadDir_Missing(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "m.gguf")
	if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Resolve(dir, "m.gguf")
	if err != nil || got != p {
		t.Fatalf("relative: got %q err=%v", got, err)
	}
	got, err = Resolve(t.TempDir(), p)
	if err != nil || got != p {
		t.Fatalf("absolute: got %q err=%v", got, err)
	}
	if _, err := Resolve(dir, "../m.gguf"); !errors.Is(err, ErrOutsideDir) {
		t.Fatalf("expected ErrOutsideDir, got %v", err)
	}
	if _, err := Resolve(dir, "missing.gguf"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
	if _, err := Resolve(dir, " "); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if _, err := Resolve(filepath.Dir(dir), filepath.Base(dir)); err == nil {
		t.Fatalf("expected error for directory")
	}
}
