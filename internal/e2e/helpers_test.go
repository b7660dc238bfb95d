package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"sdminer/internal/coordinator"
)

func projectRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// <root>/internal/e2e/helpers_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

// goBuild compiles target (a package path or a single file, relative to the
// module root) and returns the binary path.
func goBuild(t *testing.T, target, name string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not in PATH")
	}
	bin := filepath.Join(t.TempDir(), name)
	cmd := exec.Command("go", "build", "-o", bin, target)
	cmd.Dir = projectRoot(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build %s: %v\n%s", target, err, out)
	}
	return bin
}

func createModelsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("gguf"), 0o644); err != nil {
			t.Fatalf("write model %s: %v", n, err)
		}
	}
	return dir
}

// fakeCoordinator serves the miner endpoints from an in-memory job queue.
type fakeCoordinator struct {
	srv *httptest.Server

	mu       sync.Mutex
	jobs     []coordinator.Job
	requests []coordinator.MinerRequest
	submits  []coordinator.SubmitRequest
	signals  int
	hits     int
	submitCh chan coordinator.SubmitRequest
}

func newFakeCoordinator(t *testing.T, jobs ...coordinator.Job) *fakeCoordinator {
	t.Helper()
	fc := &fakeCoordinator{jobs: jobs, submitCh: make(chan coordinator.SubmitRequest, 16)}
	mux := http.NewServeMux()
	mux.HandleFunc("/miner_request", func(w http.ResponseWriter, r *http.Request) {
		var req coordinator.MinerRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		fc.mu.Lock()
		fc.requests = append(fc.requests, req)
		var job *coordinator.Job
		if len(fc.jobs) > 0 {
			job = &fc.jobs[0]
			fc.jobs = fc.jobs[1:]
		}
		fc.mu.Unlock()
		if job == nil {
			_, _ = io.WriteString(w, `{"status":"no job available"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(job)
	})
	mux.HandleFunc("/miner_submit", func(w http.ResponseWriter, r *http.Request) {
		var req coordinator.SubmitRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		fc.mu.Lock()
		fc.submits = append(fc.submits, req)
		fc.mu.Unlock()
		fc.submitCh <- req
		_, _ = io.WriteString(w, `{"ok":true}`)
	})
	mux.HandleFunc("/miner_signal", func(w http.ResponseWriter, r *http.Request) {
		fc.mu.Lock()
		fc.signals++
		fc.mu.Unlock()
		_, _ = io.WriteString(w, `{"model_id":""}`)
	})
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	fc.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fc.mu.Lock()
		fc.hits++
		fc.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(fc.srv.Close)
	return fc
}

func (fc *fakeCoordinator) URL() string { return fc.srv.URL }

func (fc *fakeCoordinator) hitCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.hits
}

func (fc *fakeCoordinator) minerRequests() []coordinator.MinerRequest {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]coordinator.MinerRequest(nil), fc.requests...)
}

// writeConfig writes a TOML config pointing at base and returns its path.
func writeConfig(t *testing.T, base, modelsDir string, devices int, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "base_url = \"" + base + "\"\n" +
		"signal_url = \"" + base + "\"\n" +
		"version = \"1.2.3\"\n" +
		"models_dir = \"" + modelsDir + "\"\n" +
		"sleep_duration = 0.05\n" +
		"num_cuda_devices = " + itoa(devices) + "\n" + extra
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
