package manager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sdminer/pkg/types"
)

// writeModel creates an empty model file and returns its registry entry.
func writeModel(t *testing.T, dir, id string) types.Model {
	t.Helper()
	p := filepath.Join(dir, id+".gguf")
	if err := os.WriteFile(p, []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return types.Model{ID: id, Name: id, Path: p, Format: "gguf"}
}

// fakeAdapter is a lightweight in-memory adapter used for tests.
type fakeAdapter struct {
	mu       sync.Mutex
	startErr error
	genErr   error
	tokens   []string
	final    FinalResult
	started  []string
	open     int
	lastP    InferParams
	panicGen bool
}

func (f *fakeAdapter) Start(ctx context.Context, modelPath string) (InferSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, modelPath)
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.open++
	return &fakeSession{f: f}, nil
}

func (f *fakeAdapter) openSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

type fakeSession struct {
	f      *fakeAdapter
	closed bool
}

func (s *fakeSession) Generate(ctx context.Context, prompt string, params InferParams, onToken func(string) error) (FinalResult, error) {
	s.f.mu.Lock()
	s.f.lastP = params
	s.f.mu.Unlock()
	if s.f.panicGen {
		panic("boom")
	}
	if s.f.genErr != nil {
		return FinalResult{}, s.f.genErr
	}
	for _, t := range s.f.tokens {
		select {
		case <-ctx.Done():
			return FinalResult{}, ctx.Err()
		default:
		}
		if err := onToken(t); err != nil {
			return FinalResult{}, err
		}
	}
	return s.f.final, nil
}

func (s *fakeSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.f.mu.Lock()
	s.f.open--
	s.f.mu.Unlock()
	return nil
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}
