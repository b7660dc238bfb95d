// Package supervisor validates the host against the configuration, keeps the
// model catalog in sync and runs one worker process per device.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"sdminer/internal/catalog"
	"sdminer/internal/config"
	"sdminer/internal/hardware"
)

// DefaultGrace is how long a worker gets between SIGTERM and kill.
const DefaultGrace = 10 * time.Second

// ErrDeviceMismatch is returned when more devices are configured than the host
// has.
var ErrDeviceMismatch = errors.New("configured devices exceed available devices")

// Options wires a Supervisor.
type Options struct {
	Config  config.Config
	Probe   hardware.Probe
	Spawner Spawner
	// Catalog is optional; nil skips the initial sync and the updater.
	Catalog *catalog.Syncer
	Grace   time.Duration
	Logger  zerolog.Logger
}

// Supervisor owns the device worker processes.
type Supervisor struct {
	cfg     config.Config
	probe   hardware.Probe
	spawner Spawner
	syncer  *catalog.Syncer
	grace   time.Duration
	log     zerolog.Logger
	procs   procSet
}

// New returns a Supervisor; Probe and Spawner are required.
func New(opts Options) *Supervisor {
	grace := opts.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Supervisor{
		cfg:     opts.Config,
		probe:   opts.Probe,
		spawner: opts.Spawner,
		syncer:  opts.Catalog,
		grace:   grace,
		log:     opts.Logger,
	}
}

// CheckDevices fails when the configured device count exceeds the physical
// one or any configured device is unusable.
func (s *Supervisor) CheckDevices() error {
	want := s.cfg.NumCUDADevices
	have, err := s.probe.DeviceCount()
	if err != nil {
		s.log.Warn().Err(err).Msg("device query failed")
	}
	if want > have {
		return fmt.Errorf("%w: num_cuda_devices=%d, available=%d", ErrDeviceMismatch, want, have)
	}
	for i := 0; i < want; i++ {
		if err := s.probe.CheckDevice(i, s.cfg.MinComputeCap); err != nil {
			return err
		}
	}
	return nil
}

// Run validates devices, syncs the catalog once, starts the periodic updater
// and one worker per device, then waits. Workers exiting on their own do not
// affect each other. Canceling ctx stops every worker and Run returns nil.
// Startup failures are returned before any worker is spawned.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.CheckDevices(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updaterDone := make(chan struct{})
	if s.syncer != nil {
		rep, err := s.syncer.Sync(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("initial catalog sync failed; continuing with local models")
		} else {
			s.log.Info().Int("listed", rep.Listed).Int("present", rep.Present).
				Int("downloaded", len(rep.Downloaded)).Int("failed", len(rep.Failed)).Msg("catalog synced")
		}
		go func() {
			defer close(updaterDone)
			catalog.NewUpdater(s.syncer, s.cfg.CatalogEvery(), s.log.With().Str("component", "catalog").Logger()).Run(ctx)
		}()
	} else {
		close(updaterDone)
	}
	defer func() { <-updaterDone }()

	for i := 0; i < s.cfg.NumCUDADevices; i++ {
		c, err := s.spawner.Spawn(ctx, i)
		if err != nil {
			s.log.Error().Err(err).Int("device", i).Msg("spawn worker")
			s.shutdown()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.procs.add(c)
		ev := s.log.Info().Int("device", i)
		if p, ok := c.(interface{ PID() int }); ok {
			ev = ev.Int("pid", p.PID())
		}
		ev.Msg("worker started")
	}

	exited := make(chan struct{})
	var g errgroup.Group
	for _, c := range s.procs.list() {
		c := c
		g.Go(func() error {
			err := c.Wait()
			if err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Int("device", c.Device()).Msg("worker exited")
			} else {
				s.log.Info().Int("device", c.Device()).Msg("worker exited")
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(exited)
	}()

	select {
	case <-exited:
		s.log.Info().Msg("all workers exited")
	case <-ctx.Done():
		s.log.Info().Msg("stopping workers")
		s.shutdown()
		<-exited
	}
	return nil
}

func (s *Supervisor) shutdown() {
	for i, err := range s.procs.stopAll(s.grace) {
		if err != nil {
			s.log.Warn().Err(err).Int("child", i).Msg("stop worker")
		}
	}
}
