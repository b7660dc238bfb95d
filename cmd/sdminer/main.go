package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sdminer/internal/catalog"
	"sdminer/internal/config"
	"sdminer/internal/coordinator"
	"sdminer/internal/hardware"
	"sdminer/internal/logging"
	"sdminer/internal/supervisor"
	"sdminer/internal/worker"
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "sdminer:", err)
	}
	os.Exit(exitCode(err))
}

func defaultConfigPath() string {
	if v := os.Getenv("SDMINER_CONFIG"); v != "" {
		return v
	}
	return config.DefaultPath
}

func newRootCmd() *cobra.Command {
	var configPath, envFile string
	root := &cobra.Command{
		Use:           "sdminer",
		Short:         "Poll the coordinator for jobs on every configured GPU",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(envFile, configPath, "supervisor")
			if err != nil {
				return err
			}
			return runSupervisor(cmd.Context(), cfg, configPath, log)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Configuration file (.toml, .yaml or .json; defaults SDMINER_CONFIG or config.toml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "File with MINER_ID_<i> variables; missing file is ignored")

	var device int
	workerCmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run the job loop for one device",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(envFile, configPath, "worker")
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := worker.Start(ctx, cfg, device, hardware.NewSystem(), log); err != nil {
				log.Error().Err(err).Int("device", device).Msg("worker failed")
				return &exitError{code: 1, err: err}
			}
			return nil
		},
	}
	workerCmd.Flags().IntVar(&device, "device", 0, "CUDA device index")
	_ = workerCmd.MarkFlagRequired("device")
	root.AddCommand(workerCmd)
	return root
}

// setup loads the env file and configuration and builds the root logger.
func setup(envFile, configPath, component string) (config.Config, zerolog.Logger, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return config.Config{}, zerolog.Nop(), &exitError{code: 1, err: err}
	}
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return cfg, zerolog.Nop(), &exitError{code: 1, err: err}
	}
	log := logging.New(component, logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return cfg, log, nil
}

func runSupervisor(ctx context.Context, cfg config.Config, configPath string, log zerolog.Logger) error {
	// Every device needs an identity before anything starts.
	if _, err := config.MinerIDs(cfg.NumCUDADevices, nil, log); err != nil {
		return &exitError{code: 1, err: err}
	}
	spawner, err := supervisor.NewExecSpawner(configPath)
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	client := coordinator.New(coordinator.Options{
		BaseURL:    cfg.BaseURL,
		SignalURL:  cfg.SignalURL,
		Version:    cfg.Version,
		Timeout:    cfg.Timeout(),
		MaxRetries: cfg.MaxRetries,
	})
	sup := supervisor.New(supervisor.Options{
		Config:  cfg,
		Probe:   hardware.NewSystem(),
		Spawner: spawner,
		Catalog: catalog.NewSyncer(client, cfg.CatalogURL, cfg.ModelsDir, log.With().Str("component", "catalog").Logger()),
		Logger:  log,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := sup.Run(ctx); err != nil {
		log.Error().Err(err).Msg("supervisor startup failed")
		return &exitError{code: 1, err: err}
	}
	if ctx.Err() != nil {
		log.Info().Msg("interrupted; all workers terminated")
	}
	return nil
}
