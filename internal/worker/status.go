package worker

import (
	"slices"

	"sdminer/pkg/types"
)

// Status reports the worker for the status endpoint.
func (w *Worker) Status() types.WorkerStatus {
	loaded := w.mgr.Loaded()
	active := ""
	if len(loaded) > 0 {
		active = loaded[0]
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	st := types.WorkerStatus{
		Device:        w.opts.Identity.DeviceIndex,
		MinerID:       w.opts.Identity.MinerID,
		Version:       w.opts.Identity.Version,
		State:         w.stats.phase,
		ActiveModel:   active,
		LoadedModels:  slices.Clone(loaded),
		LocalModels:   slices.Clone(w.stats.localModels),
		JobsExecuted:  w.stats.jobsExecuted,
		IdlePolls:     w.stats.idlePolls,
		LastError:     w.stats.lastError,
		UptimeSeconds: int64(w.now().Sub(w.started).Seconds()),
	}
	if !w.state.LastHeartbeat.IsZero() {
		st.LastHeartbeatUnix = w.state.LastHeartbeat.Unix()
	}
	st.LastSignalUnix = w.state.LastSignal.Unix()
	if st.LoadedModels == nil {
		st.LoadedModels = []string{}
	}
	if st.LocalModels == nil {
		st.LocalModels = []string{}
	}
	return st
}

// Ready reports whether a model is loaded.
func (w *Worker) Ready() bool { return len(w.mgr.Loaded()) > 0 }

func (w *Worker) setPhase(p string) {
	w.mu.Lock()
	w.stats.phase = p
	w.mu.Unlock()
}

func (w *Worker) setLocal(ids []string) {
	w.mu.Lock()
	w.stats.localModels = ids
	w.mu.Unlock()
}

func (w *Worker) recordError(err error) {
	w.mu.Lock()
	w.stats.lastError = err.Error()
	w.mu.Unlock()
}
