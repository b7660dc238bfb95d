package manager

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sdminer/pkg/types"
)

// buildTestBinary builds the fake llama server used for subprocess tests and returns its path.
func buildTestBinary(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "fake_llama_server")
	cmd := exec.Command("go", "build", "-o", bin, "./testdata/fake_llama_server.go")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build fake server: %v: %s", err, string(out))
	}
	return bin
}

func TestSubprocessLoadExecuteStop(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	bin := buildTestBinary(t)
	dir := t.TempDir()
	pub := NewMemoryPublisher()
	m := NewWithConfig(ManagerConfig{
		Device:    2,
		Registry:  []types.Model{writeModel(t, dir, "m1")},
		Runtime:   RuntimeSubprocess,
		LlamaBin:  bin,
		Publisher: pub,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.LoadDefault(ctx); err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	sa := m.adapter.(*llamaSubprocessAdapter)
	pid, _, ready, ok := sa.getProcInfo(m.Snapshot().CurrentModel.Path)
	if !ok || !ready || pid <= 0 {
		t.Fatalf("expected ready process, got pid=%d ready=%v ok=%v", pid, ready, ok)
	}

	res, err := m.Execute(ctx, Request{JobID: "j", Input: map[string]any{"prompt": "hi"}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Content != "hi|2" || res.FinishReason != "stop" {
		t.Fatalf("unexpected result %+v", res)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	sa.mu.Lock()
	n := len(sa.procs)
	sa.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no procs after close, got %d", n)
	}
	names := strings.Join(pub.Names(), ",")
	for _, want := range []string{"spawn_start", "spawn_ready", "spawn_stop"} {
		if !strings.Contains(names, want) {
			t.Fatalf("missing %s in %s", want, names)
		}
	}
}

func TestSubprocessMissingBinary(t *testing.T) {
	sa := NewLlamaSubprocessAdapter(ManagerConfig{LlamaBin: filepath.Join(t.TempDir(), "nope")}).(*llamaSubprocessAdapter)
	_, err := sa.Start(testCtx(t), "m.gguf")
	if !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}

func TestSubprocessArgsAndEnv(t *testing.T) {
	sa := NewLlamaSubprocessAdapter(ManagerConfig{
		Device:         3,
		LlamaCtxSize:   4096,
		LlamaNGL:       99,
		LlamaThreads:   8,
		LlamaExtraArgs: []string{"--flash-attn"},
	}).(*llamaSubprocessAdapter)
	got := strings.Join(sa.args("/m.gguf", 9000), " ")
	want := "-m /m.gguf --host 127.0.0.1 --port 9000 -c 4096 -ngl 99 -t 8 --flash-attn"
	if got != want {
		t.Fatalf("args = %q, want %q", got, want)
	}
	env := sa.deviceEnv()
	if env[len(env)-1] != "CUDA_VISIBLE_DEVICES=3" {
		t.Fatalf("device env not set: %v", env[len(env)-1])
	}
}

func TestSubprocessSession_GenerateStreamsTokens(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"A\"}}]}\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"text\":\"B\",\"finish_reason\":\"length\"}],\"usage\":{\"total_tokens\":4}}\n")
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer ts.Close()

	a := &llamaSubprocessAdapter{httpClient: &http.Client{}}
	sess := &llamaSubprocessSession{a: a, baseURL: ts.URL}
	var s string
	final, err := sess.Generate(testCtx(t), "hello", InferParams{MaxTokens: 8}, func(tok string) error { s += tok; return nil })
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if s != "AB" || final.Content != "AB" || final.FinishReason != "length" || final.Usage.TotalTokens != 4 {
		t.Fatalf("unexpected output %q %+v", s, final)
	}
}

func TestSubprocessSession_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusInternalServerError)
	}))
	defer ts.Close()
	sess := &llamaSubprocessSession{a: &llamaSubprocessAdapter{httpClient: &http.Client{}}, baseURL: ts.URL}
	if _, err := sess.Generate(testCtx(t), "x", InferParams{}, func(string) error { return nil }); err == nil {
		t.Fatalf("expected error")
	}
}
