package catalog

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Updater re-runs a Syncer on a fixed period for the life of the process.
type Updater struct {
	syncer *Syncer
	every  time.Duration
	log    zerolog.Logger
}

// NewUpdater returns an Updater calling s.Sync every period.
func NewUpdater(s *Syncer, every time.Duration, log zerolog.Logger) *Updater {
	return &Updater{syncer: s, every: every, log: log}
}

// Run blocks until ctx is done. The first sync happens one period after start;
// callers sync once themselves before launching workers.
func (u *Updater) Run(ctx context.Context) {
	if u.every <= 0 {
		u.log.Info().Msg("catalog updater disabled")
		return
	}
	t := time.NewTicker(u.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rep, err := u.syncer.Sync(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				u.log.Error().Err(err).Msg("catalog update failed")
				continue
			}
			u.log.Debug().Int("listed", rep.Listed).Int("present", rep.Present).
				Int("downloaded", len(rep.Downloaded)).Int("failed", len(rep.Failed)).Msg("catalog updated")
		}
	}
}
