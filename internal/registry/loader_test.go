package registry

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoadDir_FiltersModelFiles(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"a.gguf",
		"b.SAFETENSORS", // case-insensitive
		"c.ckpt",
		"not-model.txt",
		"model.bin",
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.gguf"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	models, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 3 {
		t.Fatalf("expected 3 models, got %d: %+v", len(models), models)
	}
	ids := IDs(models)
	if ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if models[1].Format != "safetensors" || models[0].SizeBytes != 1 {
		t.Fatalf("unexpected metadata: %+v", models)
	}
}

func TestLoadDir_MissingDirIsEmpty(t *testing.T) {
	models, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 0 {
		t.Fatalf("expected no models, got %+v", models)
	}
}

func TestLoadDir_ExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "sdminer-registry-*")
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
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "x" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestFindAndModelID(t *testing.T) {
	if got := ModelID("/m/sdxl-turbo.safetensors"); got != "sdxl-turbo" {
		t.Fatalf("ModelID=%q", got)
	}
	if !IsModelFile("x.onnx") || IsModelFile("x.txt") {
		t.Fatalf("IsModelFile mismatch")
	}
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "m1.gguf"), nil, 0o644)
	models, _ := LoadDir(dir)
	if _, ok := Find(models, "m1"); !ok {
		t.Fatalf("expected to find m1")
	}
	if _, ok := Find(models, "m2"); ok {
		t.Fatalf("did not expect m2")
	}
}
