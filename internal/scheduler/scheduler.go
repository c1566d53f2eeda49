// Package scheduler runs periodic housekeeping on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"strategybot/internal/store"
)

// Pruner forgets per-user state unused for longer than ttl.
type Pruner interface {
	Prune(ttl time.Duration) int
}

// Janitor evicts idle sessions, histories and rate-limit buckets.
type Janitor struct {
	cron     *cron.Cron
	store    store.Store
	limiters Pruner
	ttl      time.Duration
	log      zerolog.Logger
}

func NewJanitor(st store.Store, limiters Pruner, ttl time.Duration, log zerolog.Logger) *Janitor {
	return &Janitor{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		store:    st,
		limiters: limiters,
		ttl:      ttl,
		log:      log.With().Str("component", "janitor").Logger(),
	}
}

// Register schedules the sweep. spec accepts standard cron expressions
// and descriptors such as "@every 10m".
func (j *Janitor) Register(spec string) error {
	if _, err := j.cron.AddFunc(spec, func() { j.RunOnce() }); err != nil {
		return fmt.Errorf("register janitor %q: %w", spec, err)
	}
	return nil
}

// RunOnce sweeps immediately and reports what was removed.
func (j *Janitor) RunOnce() (users, buckets int) {
	users = len(j.store.PruneIdle(j.ttl))
	if j.limiters != nil {
		buckets = j.limiters.Prune(j.ttl)
	}
	j.log.Debug().
		Int("users", users).
		Int("buckets", buckets).
		Int("remaining", j.store.Users()).
		Msg("idle state pruned")
	return users, buckets
}

func (j *Janitor) Start() {
	j.cron.Start()
	j.log.Info().Dur("ttl", j.ttl).Msg("janitor started")
}

// Stop waits for a running sweep to finish or ctx to expire.
func (j *Janitor) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
	j.log.Info().Msg("janitor stopped")
}
