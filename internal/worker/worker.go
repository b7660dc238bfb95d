// Package worker implements the per-device polling loop: check for a model
// reload, ask the coordinator for a job, execute it and submit the result.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sdminer/internal/config"
	"sdminer/internal/coordinator"
	"sdminer/internal/manager"
	"sdminer/pkg/types"
)

// HeartbeatInterval is the minimum spacing between requests carrying
// hardware and version.
const HeartbeatInterval = 60 * time.Second

// Coordinator is the part of *coordinator.Client the loop uses.
type Coordinator interface {
	RequestJob(ctx context.Context, req coordinator.MinerRequest) (coordinator.JobResponse, error)
	Signal(ctx context.Context, req coordinator.SignalRequest) (coordinator.SignalResponse, error)
	SubmitResult(ctx context.Context, req coordinator.SubmitRequest) error
}

// ModelManager is the part of *manager.Manager the loop uses.
type ModelManager interface {
	SetRegistry(models []types.Model)
	Loaded() []string
	Reload(ctx context.Context, modelID string) error
	Execute(ctx context.Context, req manager.Request) (manager.Result, error)
}

// Outcome tags the result of one loop iteration.
type Outcome int

const (
	OutcomeIdle Outcome = iota
	OutcomeExecuted
	OutcomeStop
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeExecuted:
		return "executed"
	case OutcomeStop:
		return "stop"
	case OutcomeError:
		return "error"
	}
	return "unknown"
}

// State is the mutable loop state owned by one worker.
type State struct {
	// LastHeartbeat is zero until the first heartbeat, so the first request carries one.
	LastHeartbeat time.Time
	// LastSignal starts at worker creation; the first reload check waits a full interval.
	LastSignal time.Time
}

// Options configures a Worker.
type Options struct {
	Identity       config.Identity
	ReloadInterval time.Duration
	SleepDuration  time.Duration
	MinDeadline    int
	ExcludeSDXL    bool
}

// Deps are the collaborators of a Worker. Now and Sleep default to the wall
// clock.
type Deps struct {
	Coordinator Coordinator
	Manager     ModelManager
	// Scan lists the models in local storage.
	Scan func() ([]types.Model, error)
	// Hardware returns the description attached to heartbeats.
	Hardware func() string
	Logger   zerolog.Logger
	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
}

// Worker runs the polling loop for one device.
type Worker struct {
	opts  Options
	coord Coordinator
	mgr   ModelManager
	scan  func() ([]types.Model, error)
	hw    func() string
	log   zerolog.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	state   State
	started time.Time
	stats   stats
}

type stats struct {
	phase        string
	localModels  []string
	jobsExecuted uint64
	idlePolls    uint64
	lastError    string
}

// New builds a Worker. The reload window starts now.
func New(opts Options, deps Deps) *Worker {
	w := &Worker{
		opts:  opts,
		coord: deps.Coordinator,
		mgr:   deps.Manager,
		scan:  deps.Scan,
		hw:    deps.Hardware,
		log:   deps.Logger,
		now:   deps.Now,
		sleep: deps.Sleep,
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.sleep == nil {
		w.sleep = sleepCtx
	}
	if w.hw == nil {
		w.hw = func() string { return "" }
	}
	w.started = w.now()
	w.state.LastSignal = w.started
	w.stats.phase = "starting"
	return w
}

// State returns a copy of the loop state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
