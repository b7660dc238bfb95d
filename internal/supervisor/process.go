package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// Child is one running device worker.
type Child interface {
	// Device returns the device index the child was started for.
	Device() int
	// Wait blocks until the child exits and returns its exit error.
	Wait() error
	// Stop asks the child to terminate and kills it after grace.
	Stop(grace time.Duration) error
}

// Spawner starts device workers.
type Spawner interface {
	Spawn(ctx context.Context, device int) (Child, error)
}

// ExecSpawner re-executes the current binary as "worker --device N" with the
// parent environment. CUDA_VISIBLE_DEVICES is left alone; the device index is
// passed explicitly.
type ExecSpawner struct {
	Exe        string
	ConfigPath string
	Stdout     io.Writer
	Stderr     io.Writer
}

// NewExecSpawner returns a spawner for the running executable.
func NewExecSpawner(configPath string) (*ExecSpawner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &ExecSpawner{Exe: exe, ConfigPath: configPath, Stdout: os.Stdout, Stderr: os.Stderr}, nil
}

func (s *ExecSpawner) args(device int) []string {
	args := []string{"worker", "--device", strconv.Itoa(device)}
	if s.ConfigPath != "" {
		args = append(args, "--config", s.ConfigPath)
	}
	return args
}

// Spawn starts the worker process. The process is not bound to ctx; it is
// stopped explicitly through Child.Stop.
func (s *ExecSpawner) Spawn(ctx context.Context, device int) (Child, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(s.Exe, s.args(device)...)
	cmd.Env = os.Environ()
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %d: %w", device, err)
	}
	p := &process{device: device, cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type process struct {
	device int
	cmd    *exec.Cmd
	done   chan struct{}
	err    error
}

func (p *process) Device() int { return p.device }

func (p *process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) Wait() error {
	<-p.done
	return p.err
}

func (p *process) Stop(grace time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = p.cmd.Process.Kill()
	}
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-p.done:
		return nil
	case <-t.C:
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill worker %d: %w", p.device, err)
	}
	<-p.done
	return nil
}

// procSet tracks started children so they can all be stopped together.
type procSet struct {
	mu       sync.Mutex
	children []Child
}

func (s *procSet) add(c Child) {
	s.mu.Lock()
	s.children = append(s.children, c)
	s.mu.Unlock()
}

func (s *procSet) list() []Child {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Child(nil), s.children...)
}

// stopAll stops every tracked child concurrently and waits for all of them.
func (s *procSet) stopAll(grace time.Duration) []error {
	children := s.list()
	errs := make([]error, len(children))
	var wg sync.WaitGroup
	for i, c := range children {
		wg.Add(1)
		go func(i int, c Child) {
			defer wg.Done()
			errs[i] = c.Stop(grace)
		}(i, c)
	}
	wg.Wait()
	return errs
}
