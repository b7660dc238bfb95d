package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"sdminer/internal/config"
	"sdminer/internal/coordinator"
	"sdminer/internal/hardware"
	"sdminer/internal/httpapi"
	"sdminer/internal/logging"
	"sdminer/internal/manager"
	"sdminer/internal/metrics"
	"sdminer/internal/registry"
	"sdminer/pkg/types"
)

// Start runs the worker for device until ctx is canceled or local storage is
// empty: it assigns the miner identity, loads the default model, optionally
// serves the status endpoints and then enters the loop.
func Start(ctx context.Context, cfg config.Config, device int, probe hardware.Probe, log zerolog.Logger) error {
	ids, err := config.MinerIDs(cfg.NumCUDADevices, nil, log)
	if err != nil {
		return err
	}
	id, err := config.AssignIdentity(cfg, ids, device)
	if err != nil {
		return err
	}
	log = logging.ForDevice(log, device, id.MinerID)

	models, err := registry.LoadDir(cfg.ModelsDir)
	if err != nil {
		return fmt.Errorf("scan models dir: %w", err)
	}
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Device:         device,
		Registry:       models,
		DefaultModel:   cfg.DefaultModel,
		Runtime:        cfg.Runtime,
		LlamaBin:       cfg.LlamaBin,
		LlamaCtxSize:   cfg.LlamaCtx,
		LlamaThreads:   cfg.LlamaThreads,
		LlamaNGL:       cfg.LlamaNGL,
		LlamaExtraArgs: cfg.LlamaArgs,
		Publisher:      manager.MultiPublisher{manager.LogPublisher{Log: log}, eventMetrics{}},
		Logger:         log,
	})
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Warn().Err(err).Msg("release model")
		}
	}()
	if err := mgr.LoadDefault(ctx); err != nil {
		return fmt.Errorf("load default model: %w", err)
	}
	log.Info().Str("model", mgr.Active()).Int("local_models", len(models)).Msg("worker ready")

	client := coordinator.New(coordinator.Options{
		BaseURL:    cfg.BaseURL,
		SignalURL:  cfg.SignalURL,
		MinerID:    id.MinerID,
		Version:    cfg.Version,
		Timeout:    cfg.Timeout(),
		MaxRetries: cfg.MaxRetries,
	})

	w := New(Options{
		Identity:       id,
		ReloadInterval: cfg.ReloadEvery(),
		SleepDuration:  cfg.SleepFor(),
		MinDeadline:    cfg.MinDeadline,
		ExcludeSDXL:    cfg.ExcludeSDXL,
	}, Deps{
		Coordinator: client,
		Manager:     mgr,
		Scan:        func() ([]types.Model, error) { return registry.LoadDir(cfg.ModelsDir) },
		Hardware:    cachedDescription(probe, device),
		Logger:      log,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	if cfg.StatusPort > 0 {
		addr := net.JoinHostPort("", strconv.Itoa(cfg.StatusPort+device))
		hl := log.With().Str("component", "httpapi").Logger()
		srv := httpapi.NewServer(addr, httpapi.NewMux(w, httpapi.Options{CORSOrigins: cfg.CORSOrigins, Logger: &hl}))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httpapi.Serve(ctx, srv, hl); err != nil && !errors.Is(err, context.Canceled) {
				hl.Error().Err(err).Msg("status server stopped")
			}
		}()
	}
	err = w.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// eventMetrics counts manager events in the worker metrics.
type eventMetrics struct{}

func (eventMetrics) Publish(e manager.Event) { metrics.IncModelEvent(e.Name) }

// cachedDescription computes the heartbeat hardware string once.
func cachedDescription(probe hardware.Probe, device int) func() string {
	if probe == nil {
		return func() string { return "" }
	}
	return sync.OnceValue(func() string { return probe.Describe(device) })
}
