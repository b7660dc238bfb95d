package worker

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sdminer/internal/config"
	"sdminer/internal/coordinator"
	"sdminer/internal/manager"
	"sdminer/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeCoord struct {
	mu         sync.Mutex
	requests   []coordinator.MinerRequest
	signals    int
	submits    []coordinator.SubmitRequest
	onRequest  func(n int) (coordinator.JobResponse, error)
	signalResp coordinator.SignalResponse
	signalErr  error
	submitErr  error
}

func (f *fakeCoord) RequestJob(ctx context.Context, req coordinator.MinerRequest) (coordinator.JobResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	on := f.onRequest
	f.mu.Unlock()
	if on == nil {
		return coordinator.JobResponse{Status: 200, Body: "{}"}, nil
	}
	return on(n)
}

func (f *fakeCoord) Signal(ctx context.Context, req coordinator.SignalRequest) (coordinator.SignalResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals++
	return f.signalResp, f.signalErr
}

func (f *fakeCoord) SubmitResult(ctx context.Context, req coordinator.SubmitRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, req)
	return f.submitErr
}

func (f *fakeCoord) calls() (requests, signals, submits int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests), f.signals, len(f.submits)
}

type fakeManager struct {
	mu        sync.Mutex
	loaded    []string
	registry  []types.Model
	reloads   []string
	reloadErr error
	execErr   error
	executed  []manager.Request
}

func (m *fakeManager) SetRegistry(models []types.Model) {
	m.mu.Lock()
	m.registry = models
	m.mu.Unlock()
}

func (m *fakeManager) Loaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.loaded)
}

func (m *fakeManager) Reload(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloads = append(m.reloads, id)
	if m.reloadErr != nil {
		return m.reloadErr
	}
	m.loaded = []string{id}
	return nil
}

func (m *fakeManager) Execute(ctx context.Context, req manager.Request) (manager.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed = append(m.executed, req)
	if m.execErr != nil {
		return manager.Result{}, m.execErr
	}
	return manager.Result{ModelID: req.ModelID, Content: "out", Duration: 2 * time.Second}, nil
}

type harness struct {
	w      *Worker
	clock  *fakeClock
	coord  *fakeCoord
	mgr    *fakeManager
	models []types.Model
	sleeps []time.Duration
	scans  int
}

func models(ids ...string) []types.Model {
	out := make([]types.Model, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.Model{ID: id, Path: "/m/" + id + ".gguf"})
	}
	return out
}

func newHarness(local []types.Model, loaded ...string) *harness {
	h := &harness{
		clock:  newClock(),
		coord:  &fakeCoord{},
		mgr:    &fakeManager{loaded: loaded},
		models: local,
	}
	h.w = New(Options{
		Identity:       config.Identity{DeviceIndex: 0, MinerID: "0x123", Version: "1.0.0"},
		ReloadInterval: 600 * time.Second,
		SleepDuration:  2 * time.Second,
		MinDeadline:    60,
		ExcludeSDXL:    true,
	}, Deps{
		Coordinator: h.coord,
		Manager:     h.mgr,
		Scan: func() ([]types.Model, error) {
			h.scans++
			return h.models, nil
		},
		Hardware: func() string { return "NVIDIA RTX 4090" },
		Logger:   zerolog.Nop(),
		Now:      h.clock.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			h.clock.Advance(d)
			return ctx.Err()
		},
	})
	return h
}

func jobResponse(jobID, modelID string) coordinator.JobResponse {
	return coordinator.JobResponse{
		Status:  200,
		Latency: 150 * time.Millisecond,
		Job: &coordinator.Job{
			JobID:           jobID,
			ModelID:         modelID,
			TempCredentials: json.RawMessage(`{"access_key":"k"}`),
			ModelInput:      map[string]any{"prompt": "a cat"},
		},
	}
}

var errBoom = errors.New("boom")
