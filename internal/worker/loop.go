package worker

import (
	"context"
	"fmt"
	"time"

	"sdminer/internal/coordinator"
	"sdminer/internal/manager"
	"sdminer/internal/metrics"
	"sdminer/internal/registry"
)

// Run polls until ctx is canceled or local storage holds no models. Failed
// iterations are logged and counted; they never end the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Str("active_model", w.active()).Msg("worker loop started")
	defer w.setPhase("stopped")
	for {
		if ctx.Err() != nil {
			w.log.Info().Msg("worker loop stopped")
			return nil
		}
		out, err := w.RunOnce(ctx)
		metrics.ObservePoll(out.String())
		switch out {
		case OutcomeStop:
			w.log.Warn().Str("models_dir_state", "empty").Msg("no models in local storage; exiting")
			return nil
		case OutcomeError:
			if ctx.Err() != nil {
				w.log.Info().Msg("worker loop stopped")
				return nil
			}
			kind := errorKind(err)
			metrics.IncIterationError(kind)
			w.recordError(err)
			w.log.Error().Err(err).Str("kind", kind).Msg("iteration failed")
		}
		if out == OutcomeExecuted {
			continue
		}
		if err := w.sleep(ctx, w.opts.SleepDuration); err != nil {
			w.log.Info().Msg("worker loop stopped")
			return nil
		}
	}
}

// RunOnce performs one iteration. A panic inside the iteration is returned as
// an OutcomeError.
func (w *Worker) RunOnce(ctx context.Context) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = OutcomeError, panicError{v: r}
		}
	}()

	models, err := w.scan()
	if err != nil {
		return OutcomeError, fmt.Errorf("scan local models: %w", err)
	}
	w.mgr.SetRegistry(models)
	w.setLocal(registry.IDs(models))
	if len(models) == 0 {
		return OutcomeStop, nil
	}

	if now := w.now(); now.Sub(w.lastSignal()) >= w.opts.ReloadInterval {
		w.checkReload(ctx, models)
		w.mu.Lock()
		w.state.LastSignal = now
		w.mu.Unlock()
	}

	req := coordinator.MinerRequest{
		MinerID:     w.opts.Identity.MinerID,
		ModelID:     w.active(),
		MinDeadline: w.opts.MinDeadline,
	}
	if now := w.now(); w.heartbeatDue(now) {
		req.Hardware = w.hw()
		req.Version = w.opts.Identity.Version
		w.mu.Lock()
		w.state.LastHeartbeat = now
		w.mu.Unlock()
		metrics.IncHeartbeat()
	}

	w.setPhase("polling")
	resp, err := w.coord.RequestJob(ctx, req)
	if resp.Warning != "" {
		w.log.Warn().Str("warning", resp.Warning).Msg("coordinator warning")
	}
	if resp.Latency > 0 {
		metrics.ObserveRequestLatency(resp.Latency)
	}
	if err != nil {
		return OutcomeError, fmt.Errorf("request job: %w", err)
	}
	if resp.Job == nil {
		w.mu.Lock()
		w.stats.idlePolls++
		w.mu.Unlock()
		return OutcomeIdle, nil
	}
	if err := w.execute(ctx, resp); err != nil {
		return OutcomeError, err
	}
	return OutcomeExecuted, nil
}

// execute runs the job and submits its result. A failed execution is still
// reported to the coordinator so it can reassign the job.
func (w *Worker) execute(ctx context.Context, resp coordinator.JobResponse) error {
	job := resp.Job
	w.setPhase("executing")
	start := w.now()
	log := w.log.With().Str("job_id", job.JobID).Str("model", job.ModelID).Logger()
	log.Info().Dur("request_latency", resp.Latency).Msg("job received")

	res, execErr := w.mgr.Execute(ctx, manager.Request{JobID: job.JobID, ModelID: job.ModelID, Input: job.ModelInput})
	sub := coordinator.SubmitRequest{
		JobID:            job.JobID,
		MinerID:          w.opts.Identity.MinerID,
		ModelID:          job.ModelID,
		TempCredentials:  job.TempCredentials,
		JobStartTime:     unixSeconds(start),
		RequestLatency:   resp.Latency.Seconds(),
		InferenceLatency: res.Duration.Seconds(),
		Result:           res.Content,
		FinishReason:     res.FinishReason,
	}
	if execErr != nil {
		sub.Error = execErr.Error()
	} else {
		metrics.ObserveInference(res.Duration)
	}
	submitErr := w.coord.SubmitResult(ctx, sub)

	switch {
	case execErr != nil:
		metrics.ObserveJob("failed")
		if submitErr != nil {
			log.Warn().Err(submitErr).Msg("failure report not delivered")
		}
		return fmt.Errorf("execute job %s: %w", job.JobID, execErr)
	case submitErr != nil:
		metrics.ObserveJob("submit_failed")
		return fmt.Errorf("submit job %s: %w", job.JobID, submitErr)
	}
	metrics.ObserveJob("submitted")
	w.mu.Lock()
	w.stats.jobsExecuted++
	w.mu.Unlock()
	log.Info().Dur("inference", res.Duration).Msg("job submitted")
	return nil
}

func (w *Worker) heartbeatDue(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.LastHeartbeat.IsZero() || now.Sub(w.state.LastHeartbeat) >= HeartbeatInterval
}

func (w *Worker) lastSignal() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.LastSignal
}

// active is the first loaded model, or "".
func (w *Worker) active() string {
	if loaded := w.mgr.Loaded(); len(loaded) > 0 {
		return loaded[0]
	}
	return ""
}

func unixSeconds(t time.Time) float64 { return float64(t.UnixNano()) / float64(time.Second) }
