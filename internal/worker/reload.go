package worker

import (
	"context"
	"slices"

	"sdminer/internal/coordinator"
	"sdminer/internal/metrics"
	"sdminer/internal/registry"
	"sdminer/pkg/types"
)

// checkReload asks the coordinator which model to serve and swaps to it when
// it is stored locally and not already loaded. Every failure here is soft.
func (w *Worker) checkReload(ctx context.Context, local []types.Model) {
	w.setPhase("reload_check")
	resp, err := w.coord.Signal(ctx, coordinator.SignalRequest{
		MinerID: w.opts.Identity.MinerID,
		Options: coordinator.SignalOptions{ExcludeSDXL: w.opts.ExcludeSDXL},
	})
	if err != nil {
		metrics.ObserveReloadCheck(metrics.ReloadSignalErr)
		w.log.Warn().Err(err).Msg("reload signal failed")
		return
	}
	target := resp.ModelID
	loaded := w.mgr.Loaded()
	if target == "" || slices.Contains(loaded, target) {
		metrics.ObserveReloadCheck(metrics.ReloadUnchanged)
		w.log.Debug().Str("model", target).Msg("reload signal: no change")
		return
	}
	if _, ok := registry.Find(local, target); !ok {
		metrics.ObserveReloadCheck(metrics.ReloadMissing)
		w.log.Info().Str("model", target).Msg("reload signal names a model not in local storage")
		return
	}
	w.log.Info().Str("from", w.active()).Str("to", target).Msg("reloading model")
	if err := w.mgr.Reload(ctx, target); err != nil {
		metrics.ObserveReloadCheck(metrics.ReloadFailed)
		w.log.Error().Err(err).Str("model", target).Msg("model reload failed")
		return
	}
	metrics.ObserveReloadCheck(metrics.ReloadSwapped)
}
